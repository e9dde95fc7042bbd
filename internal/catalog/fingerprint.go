package catalog

import (
	"context"
	"crypto/md5" //nolint:gosec // content identity, not security
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprinter produces the comparison fingerprint of one file.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, path string) (string, error)
}

// LocalFingerprinter fingerprints local files by MD5 content hash, or by
// modification time in ModeDate.
type LocalFingerprinter struct {
	Mode Mode
}

// Fingerprint implements Fingerprinter.
func (l LocalFingerprinter) Fingerprint(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if l.Mode == ModeDate {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("catalog: stat %s: %w", path, err)
		}

		return strconv.FormatInt(info.ModTime().Unix(), 10), nil
	}

	return HashFile(path)
}

// HashFile returns the hex MD5 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("catalog: opening %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec // content identity, not security
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("catalog: hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex MD5 of b.
func HashBytes(b []byte) string {
	sum := md5.Sum(b) //nolint:gosec // content identity, not security

	return hex.EncodeToString(sum[:])
}

// Resolve fills in every missing fingerprint of e using fp.
func Resolve(ctx context.Context, e *Entry, fp Fingerprinter) error {
	for i := range e.Files {
		if e.Files[i].Fingerprint != "" {
			continue
		}

		v, err := fp.Fingerprint(ctx, e.Files[i].SourcePath)
		if err != nil {
			return err
		}

		e.Files[i].Fingerprint = v
	}

	return nil
}

// Canonical returns the entry's identity fingerprint. A one-file entry uses
// that file's fingerprint unchanged. Larger entries hash their sorted
// (name, fingerprint) pairs with xxhash. Every file must already carry a
// fingerprint (see Resolve).
func Canonical(e *Entry) string {
	if len(e.Files) == 1 {
		return e.Files[0].Fingerprint
	}

	pairs := make([]string, len(e.Files))
	for i, f := range e.Files {
		pairs[i] = f.Name(e.Key) + "\x00" + f.Fingerprint
	}

	sort.Strings(pairs)

	d := xxhash.New()
	for _, p := range pairs {
		_, _ = d.WriteString(p)
		_, _ = d.WriteString("\n")
	}

	return strconv.FormatUint(d.Sum64(), 16)
}

// FingerprintMap returns name-within-entry -> fingerprint.
func FingerprintMap(e *Entry) map[string]string {
	m := make(map[string]string, len(e.Files))
	for _, f := range e.Files {
		m[f.Name(e.Key)] = f.Fingerprint
	}

	return m
}
