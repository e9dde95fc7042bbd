package sync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/yuichietsu/retroarch-sync/internal/archive"
	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/remote"
)

// Destination is the destination tree the engine writes to. Satisfied by
// *remote.Device and *remote.LocalTree. Implementations must refuse
// mutations outside Root.
type Destination interface {
	Root() string
	Scan(ctx context.Context, dir string, mode catalog.Mode) (*catalog.Catalog, error)
	Dirs(ctx context.Context, dir string) ([]string, error)
	Mkdir(ctx context.Context, dir string) error
	Remove(ctx context.Context, p string) error
	Push(ctx context.Context, local, remotePath string) error
	Fingerprint(ctx context.Context, p string) (string, error)
}

// Archiver extracts and creates archives. Satisfied by *archive.Tool.
type Archiver interface {
	Extract(ctx context.Context, archivePath, dir string) ([]string, error)
	Create(ctx context.Context, f archive.Format, dir, name string, members []string) error
	MemberCount(ctx context.Context, archivePath string) (int, error)
}

// scanDest lists dir on the destination. A directory the device reports as
// missing yields an empty catalog, which only happens in dry runs where the
// directory was never created.
func scanDest(ctx context.Context, dst Destination, dir string, logger *slog.Logger) (*catalog.Catalog, error) {
	c, err := dst.Scan(ctx, dir, catalog.ModeNone)
	if errors.Is(err, remote.ErrFatalOutput) {
		logger.Debug("destination directory missing", slog.String("dir", dir))

		return catalog.New(dir, catalog.ModeNone), nil
	}

	return c, err
}
