package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "''"},
		{"plain", "plain"},
		{"/storage/ROM/nes", "/storage/ROM/nes"},
		{"Game (USA).zip", "'Game (USA).zip'"},
		{"it's", `'it'\''s'`},
		{"a;rm -rf /", "'a;rm -rf /'"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Quote(tt.in))
		})
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "rm -rf '/a b'", Join("rm", "-rf", "/a b"))
}

func TestResult_Helpers(t *testing.T) {
	r := &Result{Lines: []string{"first", "No such file or directory", ""}}

	assert.True(t, r.OK())
	assert.Equal(t, "No such file or directory", r.Last())
	assert.True(t, r.Contains("No such file"))
	assert.False(t, r.Contains(""))
	assert.False(t, r.Contains("absent"))
}

func TestExecRunner_CapturesOutputAndExitCode(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), nil, 0o600))

	res, err := ExecRunner{}.Run(context.Background(), Command{
		Name: "/bin/sh",
		Args: []string{"-c", "ls; echo oops >&2; exit 3"},
		Dir:  dir,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Lines, "marker")
	assert.Contains(t, res.Lines, "oops")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), Command{Name: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
}

func TestCommand_String(t *testing.T) {
	c := Command{Name: "7z", Args: []string{"x", "Game (Disc 1).7z"}}
	assert.Equal(t, "7z x 'Game (Disc 1).7z'", c.String())
}
