package linkage

import (
	"fmt"
	"os"
)

// portableIdentity keys a file by path, size and mtime. Weaker than a
// device+inode pair but available everywhere.
func portableIdentity(path string, fi os.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", path, fi.Size(), fi.ModTime().UnixNano())
}
