// Package archive drives the external archive tools (zip, 7z, ciso, chdman)
// used to extract and repackage catalog entries, and owns the scratch
// directories those operations work in.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yuichietsu/retroarch-sync/internal/shell"
)

// Format is an archive container type, named by its file extension.
type Format string

// Supported formats.
const (
	Zip      Format = "zip"
	SevenZip Format = "7z"
	CSO      Format = "cso"
	CHD      Format = "chd"
)

// Tool errors.
var (
	ErrTool             = errors.New("archive: tool failed")
	ErrSizeUnparsable   = errors.New("archive: cannot retrieve uncompressed size")
	ErrUnsupported      = errors.New("archive: unsupported format")
	ErrOutsideScratch   = errors.New("archive: path outside scratch root")
	errNoInputForFormat = errors.New("archive: no input file for format")
)

// ToolError carries a failed tool invocation.
type ToolError struct {
	Command  string
	Output   []string
	ExitCode int
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%v: %s (exit %d)", e.Err, e.Command, e.ExitCode)
	if len(e.Output) > 0 {
		msg += ": " + strings.Join(e.Output, " | ")
	}

	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// formatTool describes how one format is handled by its tool.
type formatTool struct {
	extract []string // command prefix; the archive path is appended
	list    []string // prints a summary whose last line carries the size
	names   []string // prints one member per line
	create  func(to string, from []string) []string
	size    *regexp.Regexp // capture 1 is the uncompressed byte count
	input   *regexp.Regexp // members eligible as create input; nil means all
}

var formatTools = map[Format]formatTool{
	Zip: {
		extract: []string{"unzip", "-o", "-q"},
		list:    []string{"unzip", "-l"},
		names:   []string{"unzip", "-Z1"},
		create: func(to string, from []string) []string {
			return append([]string{"zip", "-9", to}, from...)
		},
		size: regexp.MustCompile(`(\d+)\s+(\d+)\s+files?`),
	},
	SevenZip: {
		extract: []string{"7z", "x", "-mmt", "-y"},
		list:    []string{"7z", "l", "-mmt"},
		names:   []string{"7z", "l", "-mmt", "-ba"},
		create: func(to string, from []string) []string {
			return append([]string{"7z", "a", "-mmt", "-mx=9", to}, from...)
		},
		size: regexp.MustCompile(`(\d+)\s+\d+\s+(\d+)\s+files?`),
	},
	CSO: {
		create: func(to string, from []string) []string {
			return []string{"ciso", "9", from[0], to}
		},
		input: regexp.MustCompile(`(?i)\.iso$`),
	},
	CHD: {
		create: func(to string, from []string) []string {
			return []string{"chdman", "createcd", "-i", from[0], "-o", to}
		},
		input: regexp.MustCompile(`(?i)\.(gdi|cue|iso)$`),
	},
}

var reArchiveExt = regexp.MustCompile(`(?i)\.(zip|7z|cso|chd)$`)

// FormatOf returns the supported format of name by extension.
func FormatOf(name string) (Format, bool) {
	m := reArchiveExt.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}

	return Format(strings.ToLower(m[1])), true
}

// Extractable reports whether name is an archive this package can unpack.
func Extractable(name string) bool {
	f, ok := FormatOf(name)

	return ok && formatTools[f].extract != nil
}

// TrimExt removes a supported archive extension from name.
func TrimExt(name string) string {
	return reArchiveExt.ReplaceAllString(name, "")
}

// InputFilter narrows members to the first one the target format accepts
// as input. When none qualifies, members is returned unchanged.
func InputFilter(to Format, members []string) []string {
	re := formatTools[to].input
	if re == nil {
		return members
	}

	for _, m := range members {
		if re.MatchString(m) {
			return []string{m}
		}
	}

	return members
}

// Tool runs archive commands through a shell.Runner.
type Tool struct {
	runner shell.Runner
	logger *slog.Logger
}

// NewTool returns a Tool.
func NewTool(runner shell.Runner, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tool{runner: runner, logger: logger}
}

func (t *Tool) run(ctx context.Context, dir string, argv []string) (*shell.Result, error) {
	cmd := shell.Command{Name: argv[0], Args: argv[1:], Dir: dir}

	t.logger.Debug("running archive tool", slog.String("command", cmd.String()), slog.String("dir", dir))

	res, err := t.runner.Run(ctx, cmd)
	if err != nil {
		return nil, &ToolError{Command: cmd.String(), Err: fmt.Errorf("%w: %w", ErrTool, err)}
	}

	if !res.OK() {
		return nil, &ToolError{Command: cmd.String(), Output: res.Lines, ExitCode: res.ExitCode, Err: ErrTool}
	}

	return res, nil
}

func lookup(archivePath string) (formatTool, error) {
	f, ok := FormatOf(archivePath)
	if !ok || formatTools[f].extract == nil {
		return formatTool{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(archivePath))
	}

	return formatTools[f], nil
}

// Extract unpacks archivePath into dir and returns the extracted regular
// files as sorted slash paths relative to dir.
func (t *Tool) Extract(ctx context.Context, archivePath, dir string) ([]string, error) {
	s, err := lookup(archivePath)
	if err != nil {
		return nil, err
	}

	if _, err := t.run(ctx, dir, append(append([]string{}, s.extract...), archivePath)); err != nil {
		return nil, err
	}

	return Members(dir)
}

// Members lists the regular files below dir as sorted slash paths.
func Members(dir string) ([]string, error) {
	var out []string

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.Type().IsRegular() {
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}

			out = append(out, filepath.ToSlash(rel))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: listing %s: %w", dir, err)
	}

	sort.Strings(out)

	return out, nil
}

// Create builds dir/name in format f from members (relative to dir).
func (t *Tool) Create(ctx context.Context, f Format, dir, name string, members []string) error {
	s, ok := formatTools[f]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, f)
	}

	if len(members) == 0 {
		return fmt.Errorf("%w %s", errNoInputForFormat, f)
	}

	from := make([]string, len(members))
	for i, m := range members {
		from[i] = "./" + m
	}

	_, err := t.run(ctx, dir, s.create(name, from))

	return err
}

// UncompressedSize reads the total uncompressed size from the archive
// listing's last line.
func (t *Tool) UncompressedSize(ctx context.Context, archivePath string) (int64, error) {
	s, err := lookup(archivePath)
	if err != nil {
		return 0, err
	}

	argv := append(append([]string{}, s.list...), archivePath)

	res, err := t.run(ctx, "", argv)
	if err != nil {
		return 0, err
	}

	m := s.size.FindStringSubmatch(res.Last())
	if m == nil {
		return 0, &ToolError{Command: strings.Join(argv, " "), Output: res.Lines, Err: ErrSizeUnparsable}
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, &ToolError{Command: strings.Join(argv, " "), Output: res.Lines, Err: ErrSizeUnparsable}
	}

	return n, nil
}

// MemberCount returns the number of members in the archive.
func (t *Tool) MemberCount(ctx context.Context, archivePath string) (int, error) {
	s, err := lookup(archivePath)
	if err != nil {
		return 0, err
	}

	res, err := t.run(ctx, "", append(append([]string{}, s.names...), archivePath))
	if err != nil {
		return 0, err
	}

	n := 0

	for _, l := range res.Lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}

	return n, nil
}
