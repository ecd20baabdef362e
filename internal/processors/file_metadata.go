package processors

import (
	"os"
	"time"
)

// FileMetadata is the stat-based extraction result — the caller's own job
// per spec.md §4.2, kept separate from format-specific Process().
type FileMetadata struct {
	FileSize   int64
	CreateTime time.Time
	ModifyTime time.Time
}

// ExtractFileMetadata stats path for size and timestamps. Create time falls
// back to modify time on platforms/filesystems that don't report birth time.
func ExtractFileMetadata(path string) (*FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, newErr(ErrIO, path, err)
	}

	fm := &FileMetadata{
		FileSize:   info.Size(),
		ModifyTime: info.ModTime(),
		CreateTime: info.ModTime(),
	}
	if ct, ok := birthTime(info); ok {
		fm.CreateTime = ct
	}
	return fm, nil
}
