package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yuichietsu/retroarch-sync/internal/archive"
	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/config"
	"github.com/yuichietsu/retroarch-sync/internal/policy"
)

// markerPrefix starts the name of the empty file that records the source
// fingerprint inside a transformed destination entry.
const markerPrefix = "hash_"

// TransformKind is the closed set of ways an entry reaches the destination.
type TransformKind int

// Transform kinds.
const (
	PassThrough TransformKind = iota // files copied unchanged under the source key
	Repackage                        // archive re-created in another format
	Extract                          // archive unpacked into a directory
)

func (k TransformKind) String() string {
	switch k {
	case PassThrough:
		return "pass-through"
	case Repackage:
		return "repackage"
	case Extract:
		return "extract"
	default:
		return "unknown"
	}
}

// Transform moves one source entry to the destination. The set of
// implementations is closed: use Classify to obtain one.
type Transform interface {
	Kind() TransformKind
	// DestKey maps a source key to the key the entry has on the destination.
	DestKey(srcKey string) string

	same(ctx context.Context, env *transformEnv, src, dst *catalog.Entry) (bool, error)
	apply(ctx context.Context, env *transformEnv, dir string, src *catalog.Entry) error
}

// transformEnv is what a transform needs to do its work for one directory.
type transformEnv struct {
	dst      Destination
	archiver Archiver
	scratch  *archive.Scratch
	local    catalog.Fingerprinter
	opts     *policy.Options
	data     *config.CatalogData
	logger   *slog.Logger
}

// Classify picks the transform for e. Only an entry that is a single
// supported archive can be transformed; the first matching flag wins, in
// the order zip, cso, chd, ext.
func Classify(e *catalog.Entry, opts *policy.Options) Transform {
	if !e.Single() {
		return passThrough{}
	}

	f, ok := archive.FormatOf(e.Key)
	if !ok {
		return passThrough{}
	}

	packed := f == archive.SevenZip || f == archive.Zip

	switch {
	case opts.RepackZip && f == archive.SevenZip:
		return repackage{to: archive.Zip}
	case opts.RepackCSO && packed:
		return repackage{to: archive.CSO}
	case opts.RepackCHD && packed:
		return repackage{to: archive.CHD}
	case opts.Extract && archive.Extractable(e.Key):
		return extract{}
	}

	return passThrough{}
}

// passThrough copies every file of the entry to the same relative name.
type passThrough struct{}

func (passThrough) Kind() TransformKind { return PassThrough }

func (passThrough) DestKey(srcKey string) string { return srcKey }

// same compares the per-file fingerprint maps. File counts and names are
// checked before anything is hashed.
func (passThrough) same(ctx context.Context, env *transformEnv, src, dst *catalog.Entry) (bool, error) {
	if len(src.Files) != len(dst.Files) {
		return false, nil
	}

	byName := make(map[string]*catalog.FileRecord, len(dst.Files))
	for i := range dst.Files {
		byName[dst.Files[i].Name(dst.Key)] = &dst.Files[i]
	}

	for _, f := range src.Files {
		if _, ok := byName[f.Name(src.Key)]; !ok {
			return false, nil
		}
	}

	if err := catalog.Resolve(ctx, src, env.local); err != nil {
		return false, err
	}

	for _, f := range src.Files {
		d := byName[f.Name(src.Key)]

		if d.Fingerprint == "" {
			fp, err := env.dst.Fingerprint(ctx, d.SourcePath)
			if err != nil {
				return false, err
			}

			d.Fingerprint = fp
		}

		if d.Fingerprint != f.Fingerprint {
			return false, nil
		}
	}

	return true, nil
}

func (passThrough) apply(ctx context.Context, env *transformEnv, dir string, src *catalog.Entry) error {
	for _, f := range src.Files {
		if err := pushFile(ctx, env, dir, f.SourcePath, f.RelativeName); err != nil {
			return err
		}
	}

	return nil
}

// repackage re-creates a single archive in another format inside a
// directory named after the source key without its extension.
type repackage struct {
	to archive.Format
}

func (repackage) Kind() TransformKind { return Repackage }

func (repackage) DestKey(srcKey string) string { return archive.TrimExt(srcKey) }

func (repackage) same(ctx context.Context, env *transformEnv, src, dst *catalog.Entry) (bool, error) {
	return markerSame(ctx, env, src, dst)
}

func (r repackage) apply(ctx context.Context, env *transformEnv, dir string, src *catalog.Entry) error {
	dKey := r.DestKey(src.Key)

	return withScratch(env, func(tmp string) error {
		members, err := env.archiver.Extract(ctx, src.Files[0].SourcePath, tmp)
		if err != nil {
			return err
		}

		name := dKey + "." + string(r.to)
		if err := env.archiver.Create(ctx, r.to, tmp, name, archive.InputFilter(r.to, members)); err != nil {
			return err
		}

		marker, err := writeMarker(ctx, env, tmp, src)
		if err != nil {
			return err
		}

		return pushAll(ctx, env, dir, dKey, tmp, []string{name, marker})
	})
}

// extract unpacks a single archive into a directory named after the source
// key without its extension, optionally adding a list file. With a one-file
// format set, a single-member archive is instead stored as one archive of
// that format named by the entry's title.
type extract struct{}

func (extract) Kind() TransformKind { return Extract }

func (extract) DestKey(srcKey string) string { return archive.TrimExt(srcKey) }

func (extract) same(ctx context.Context, env *transformEnv, src, dst *catalog.Entry) (bool, error) {
	return markerSame(ctx, env, src, dst)
}

func (x extract) apply(ctx context.Context, env *transformEnv, dir string, src *catalog.Entry) error {
	dKey := x.DestKey(src.Key)
	srcPath := src.Files[0].SourcePath

	return withScratch(env, func(tmp string) error {
		done, err := x.oneFile(ctx, env, dir, dKey, src, tmp)
		if err != nil || done {
			return err
		}

		members, err := env.archiver.Extract(ctx, srcPath, tmp)
		if err != nil {
			return err
		}

		files := members

		if name, content, ok := listFile(env.opts, env.data, dKey, members); ok {
			if err := os.WriteFile(filepath.Join(tmp, name), []byte(content), 0o600); err != nil {
				return fmt.Errorf("sync: writing list file %s: %w", name, err)
			}

			files = append(files, name)
		}

		marker, err := writeMarker(ctx, env, tmp, src)
		if err != nil {
			return err
		}

		return pushAll(ctx, env, dir, dKey, tmp, append(files, marker))
	})
}

// oneFile handles the one-file-archive case. It reports false when the
// option is off or the archive holds more than one member.
func (extract) oneFile(
	ctx context.Context, env *transformEnv, dir, dKey string, src *catalog.Entry, tmp string,
) (bool, error) {
	ext := env.opts.OneFileExt
	if ext == "" {
		return false, nil
	}

	srcPath := src.Files[0].SourcePath

	n, err := env.archiver.MemberCount(ctx, srcPath)
	if err != nil || n != 1 {
		return false, err
	}

	to := archive.Format(ext)
	name := env.data.Title(dKey) + "." + ext

	if from, _ := archive.FormatOf(srcPath); from == to {
		marker, err := writeMarker(ctx, env, tmp, src)
		if err != nil {
			return false, err
		}

		if err := pushFile(ctx, env, dir, srcPath, path.Join(dKey, name)); err != nil {
			return false, err
		}

		return true, pushFile(ctx, env, dir, filepath.Join(tmp, marker), path.Join(dKey, marker))
	}

	members, err := env.archiver.Extract(ctx, srcPath, tmp)
	if err != nil {
		return false, err
	}

	if len(members) == 0 {
		return false, fmt.Errorf("sync: %s extracted no files", path.Base(srcPath))
	}

	if err := env.archiver.Create(ctx, to, tmp, name, members[:1]); err != nil {
		return false, err
	}

	marker, err := writeMarker(ctx, env, tmp, src)
	if err != nil {
		return false, err
	}

	return true, pushAll(ctx, env, dir, dKey, tmp, []string{name, marker})
}

// listFile builds the optional list file for an extracted entry: a
// playlist ("m3u") or a launcher command line ("cmd").
func listFile(opts *policy.Options, data *config.CatalogData, dKey string, members []string) (name, content string, ok bool) {
	disks := members
	if data != nil && len(data.Disks[dKey]) > 0 {
		disks = data.Disks[dKey]
	}

	title := data.Title(dKey)

	switch opts.ListFile {
	case "m3u":
		return title + ".m3u", strings.Join(disks, "\n"), true
	case "cmd":
		return title + ".cmd", strings.Join(append([]string{opts.ListCommand}, disks...), " "), true
	default:
		return "", "", false
	}
}

// markerName returns the marker file name for src. Every file of src must
// carry a fingerprint.
func markerName(src *catalog.Entry) string {
	return markerPrefix + catalog.Canonical(src)
}

// markerSame reports whether dst holds the marker of src's current content.
func markerSame(ctx context.Context, env *transformEnv, src, dst *catalog.Entry) (bool, error) {
	if err := catalog.Resolve(ctx, src, env.local); err != nil {
		return false, err
	}

	want := markerName(src)

	for _, f := range dst.Files {
		if f.Base() == want {
			return true, nil
		}
	}

	return false, nil
}

// writeMarker creates the empty marker file for src in dir and returns its
// name.
func writeMarker(ctx context.Context, env *transformEnv, dir string, src *catalog.Entry) (string, error) {
	if err := catalog.Resolve(ctx, src, env.local); err != nil {
		return "", err
	}

	name := markerName(src)
	if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
		return "", fmt.Errorf("sync: writing marker %s: %w", name, err)
	}

	return name, nil
}

// pushAll pushes files (relative to tmp) to dir/dKey/.
func pushAll(ctx context.Context, env *transformEnv, dir, dKey, tmp string, files []string) error {
	for _, f := range files {
		if err := pushFile(ctx, env, dir, filepath.Join(tmp, filepath.FromSlash(f)), path.Join(dKey, f)); err != nil {
			return err
		}
	}

	return nil
}

// pushFile pushes local to dir/rel, creating the parent directory when it
// is below dir.
func pushFile(ctx context.Context, env *transformEnv, dir, local, rel string) error {
	target := path.Join(dir, rel)

	if parent := path.Dir(target); parent != dir {
		if err := env.dst.Mkdir(ctx, parent); err != nil {
			return err
		}
	}

	env.logger.Info("push", slog.String("file", rel), slog.String("dest", target))

	return env.dst.Push(ctx, local, target)
}

// withScratch runs fn in a fresh scratch directory that is removed
// afterwards, also when fn fails.
func withScratch(env *transformEnv, fn func(tmp string) error) (err error) {
	tmp, err := env.scratch.Dir()
	if err != nil {
		return err
	}

	defer func() {
		if rmErr := env.scratch.Remove(tmp); rmErr != nil {
			env.logger.Warn("removing scratch directory failed",
				slog.String("dir", tmp), slog.String("error", rmErr.Error()))
		}
	}()

	return fn(tmp)
}
