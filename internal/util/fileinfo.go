package util

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FileInfo contains the identity of a file used to detect changes: modification
// time, size and inode number.
type FileInfo struct {
	ModTime int64  `json:"mod_time"` // nanoseconds since epoch
	Size    int64  `json:"size"`
	Inode   uint64 `json:"inode"`
}

// GetFileInfo stats path, following symlinks.
// Supported on Linux and macOS.
func GetFileInfo(path string) (*FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	sec, nsec := st.Mtim.Unix()
	return &FileInfo{
		ModTime: sec*1e9 + nsec,
		Size:    st.Size,
		Inode:   uint64(st.Ino),
	}, nil
}

// IsReadable reports whether the current process may read path.
func IsReadable(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}
