package selection

import (
	"context"
	"fmt"
	"os"

	"github.com/yuichietsu/retroarch-sync/internal/archive"
	"github.com/yuichietsu/retroarch-sync/internal/catalog"
)

// UnpackedSizer reports uncompressed sizes. *archive.Tool implements it.
type UnpackedSizer interface {
	UncompressedSize(ctx context.Context, archivePath string) (int64, error)
}

// FileSizer sizes entries by their files on disk. An entry for which
// Unpacked reports true and that is a single extractable archive is sized
// by its uncompressed contents, which is what the destination holds after
// extraction or repackaging. A nil Unpacked sizes every entry on disk.
type FileSizer struct {
	Tool     UnpackedSizer
	Unpacked func(e *catalog.Entry) bool
}

// Size implements Sizer.
func (f FileSizer) Size(ctx context.Context, e *catalog.Entry) (int64, error) {
	if f.unpacked(e) {
		return f.Tool.UncompressedSize(ctx, e.Files[0].SourcePath)
	}

	var n int64

	for _, file := range e.Files {
		if file.Size > 0 {
			n += file.Size
			continue
		}

		info, err := os.Stat(file.SourcePath)
		if err != nil {
			return 0, fmt.Errorf("selection: stat %s: %w", file.SourcePath, err)
		}

		n += info.Size()
	}

	return n, nil
}

func (f FileSizer) unpacked(e *catalog.Entry) bool {
	if f.Unpacked == nil || f.Tool == nil || len(e.Files) != 1 {
		return false
	}

	return archive.Extractable(e.Files[0].SourcePath) && f.Unpacked(e)
}
