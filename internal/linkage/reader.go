// Package linkage drives the binary readers and the search resolver
// over a root binary to build its transitive dependency closure.
package linkage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkglink/linkage-cli/internal/binfmt"
)

// Reader parses one binary file into its structured dependency record.
// Implementations fail closed on malformed content: a file that cannot
// be parsed yields an Info with FormatUnknown and empty lists, and an
// error is returned only when the file cannot be read at all.
type Reader interface {
	Read(path, arch string) (*binfmt.Info, error)
}

// RawReader is the from-scratch implementation, built on the byte-exact
// parsers in internal/binfmt. It is the authoritative one: when the
// cross-check against the stdlib-backed reader disagrees, this result
// wins.
type RawReader struct{}

func (RawReader) Read(path, arch string) (*binfmt.Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read binary file: %w", err)
	}

	var info *binfmt.Info
	format := binfmt.ClassifyBytes(data)
	switch {
	case format.IsELF():
		info = binfmt.ReadELF(data)
	case format.IsMachO():
		info = binfmt.ReadMachO(data, arch)
	case format == binfmt.FormatPE:
		// PE carries no rpath concept and its import table offers
		// nothing the stdlib parser abstracts away, so both reader
		// implementations share the debug/pe path.
		info = readPE(data)
	default:
		info = &binfmt.Info{
			Handle: binfmt.BinaryHandle{Format: binfmt.FormatUnknown},
			RPaths: binfmt.RPathList{OwnTransitive: true},
		}
	}

	finishHandle(info, path)
	return info, nil
}

// finishHandle fills the location fields the byte parsers cannot know.
func finishHandle(info *binfmt.Info, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	info.Handle.SelfDir = filepath.Dir(abs)
}
