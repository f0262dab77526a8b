//go:build unix

package linkage

import (
	"fmt"
	"os"
	"syscall"
)

// fileIdentity returns a stable identity key for the file at path.
// Device plus inode is stable across hardlinks and repeated stats; when
// the stat shape is unavailable (or inode stability cannot be assumed,
// e.g. across container bind-mounts) the caller falls back to the
// portable size+mtime key.
func fileIdentity(path string) (string, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return fmt.Sprintf("%d:%d", st.Dev, st.Ino), true
	}
	return portableIdentity(path, fi), true
}
