//go:build !unix

package linkage

import (
	"os"
)

func fileIdentity(path string) (string, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	return portableIdentity(path, fi), true
}
