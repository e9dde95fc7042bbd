package sync

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/yuichietsu/retroarch-sync/internal/archive"
	"github.com/yuichietsu/retroarch-sync/internal/catalog"
)

// rePlaylistMember selects the file of a disc entry a playlist refers to.
var rePlaylistMember = regexp.MustCompile(`(?i)\.(cso|chd|7z|zip)$`)

const playlistExt = ".m3u"

// planStubs lists the clone placeholders to create. A clone that exists in
// the source is skipped; one already on the destination is kept.
func (e *Engine) planStubs(t *Target, src *catalog.Catalog, remaining map[string]bool) []string {
	if t.Data == nil || len(t.Data.Clones) == 0 {
		return nil
	}

	var stubs []string

	seen := make(map[string]bool)

	for _, key := range src.Keys() {
		if _, ok := archive.FormatOf(key); !ok {
			continue
		}

		game := archive.TrimExt(key)
		ext := key[len(game):]

		for _, clone := range t.Data.Clones[game] {
			name := clone + ext

			switch {
			case src.Has(name):
				e.logger.Debug("clone present in source", slog.String("clone", name), slog.String("parent", key))
			case remaining[name]:
				e.logger.Debug("clone stub exists", slog.String("clone", name), slog.String("parent", key))
				delete(remaining, name)
			case !seen[name]:
				seen[name] = true
				stubs = append(stubs, name)
			}
		}
	}

	return stubs
}

func (e *Engine) writeStubs(ctx context.Context, env *transformEnv, p *Plan) error {
	return withScratch(env, func(tmp string) error {
		empty := filepath.Join(tmp, "empty")
		if err := os.WriteFile(empty, nil, 0o600); err != nil {
			return err
		}

		for _, name := range p.Stubs {
			target := path.Join(p.Target.Dir, name)
			env.logger.Info("clone stub", slog.String("dest_key", name))

			if err := e.dst.Push(ctx, empty, target); err != nil {
				return err
			}
		}

		return nil
	})
}

// planPlaylists returns the playlist names the surviving multi-disc
// entries call for, sorted.
func (e *Engine) planPlaylists(p *Plan) []string {
	names := make(map[string]bool)

	for k := range p.survivors() {
		if set := e.setName(k); set != "" {
			names[set+playlistExt] = true
		}
	}

	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}

	sort.Strings(out)

	return out
}

// writePlaylists lists the refreshed destination directory, builds one
// playlist per multi-disc set from the surviving entries, and pushes those
// whose content changed. Each playlist names, per disc entry, the first
// archive file of that entry, sorted. A planned playlist left without
// members is removed.
func (e *Engine) writePlaylists(ctx context.Context, env *transformEnv, p *Plan) (written, removed []string, err error) {
	dir := p.Target.Dir

	listing, err := scanDest(ctx, e.dst, dir, env.logger)
	if err != nil {
		return nil, nil, err
	}

	keep := p.survivors()
	sets := make(map[string][]string)

	for _, entry := range listing.Entries() {
		set := e.setName(entry.Key)
		if set == "" || !keep[entry.Key] {
			continue
		}

		for _, f := range entry.Files {
			if rePlaylistMember.MatchString(f.RelativeName) {
				sets[set+playlistExt] = append(sets[set+playlistExt], f.RelativeName)
				break
			}
		}
	}

	err = withScratch(env, func(tmp string) error {
		for _, name := range p.Playlists {
			files, ok := sets[name]
			target := path.Join(dir, name)

			if !ok {
				if listing.Has(name) {
					env.logger.Info("delete", slog.String("dest_key", name))

					if err := e.dst.Remove(ctx, target); err != nil {
						return err
					}

					removed = append(removed, name)
				}

				continue
			}

			sort.Strings(files)
			content := strings.Join(files, "\n")

			changed, err := e.playlistChanged(ctx, listing, target, name, content)
			if err != nil {
				return err
			}

			if !changed {
				env.logger.Debug("playlist same", slog.String("dest_key", name))
				continue
			}

			local := filepath.Join(tmp, name)
			if err := os.WriteFile(local, []byte(content), 0o600); err != nil {
				return err
			}

			if listing.Has(name) {
				env.logger.Info("playlist update", slog.String("dest_key", name))

				if err := e.dst.Remove(ctx, target); err != nil {
					return err
				}
			} else {
				env.logger.Info("playlist new", slog.String("dest_key", name))
			}

			if err := e.dst.Push(ctx, local, target); err != nil {
				return err
			}

			written = append(written, name)
		}

		return nil
	})

	return written, removed, err
}

// playlistChanged compares content with the playlist on the destination
// by MD5.
func (e *Engine) playlistChanged(
	ctx context.Context, listing *catalog.Catalog, target, name, content string,
) (bool, error) {
	if !listing.Has(name) {
		return true, nil
	}

	fp, err := e.dst.Fingerprint(ctx, target)
	if err != nil {
		return false, err
	}

	return fp != catalog.HashBytes([]byte(content)), nil
}
