// Package resolve implements the dynamic-linker search-path semantics
// used to turn a declared library name into a concrete on-disk path.
// The order mirrors the documented ELF lookup (rpath list, then the
// caller-supplied loader path, then default directories) and is reused
// for Mach-O with that platform's rpath list.
package resolve

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pkglink/linkage-cli/internal/vocab"
)

// Resolution is the outcome of a single lookup. Not-found is a valid
// terminal state, not an error: Found is false and the other fields are
// zero. Callers report it as a missing dependency, never abort on it.
type Resolution struct {
	Path      string `json:"path,omitempty"`
	SearchDir string `json:"search_dir,omitempty"`
	InSysroot bool   `json:"in_sysroot"`
	Found     bool   `json:"found"`
}

// Resolver resolves declared dependency names against a search
// configuration. It keeps per-crawl state (the pinned rpath winners), so
// each crawl builds its own Resolver.
type Resolver struct {
	// DefaultDirs are the platform default library directories.
	DefaultDirs []string
	// LDPath is the caller-injected LD_LIBRARY_PATH equivalent. The
	// engine never reads the process environment itself.
	LDPath []string
	// Sysroot, when set, is the reserved build prefix. Default
	// directories are additionally tried underneath it.
	Sysroot string
	// PreferSysroot flips the both-exist preference toward the sysroot
	// copy. The default (false) prefers the native path and warns, since
	// a binary built against a cross sysroot but run against the host's
	// own library copy is the common, usually-intended case.
	PreferSysroot bool
	// Logger receives sysroot-preference warnings. Optional.
	Logger *logrus.Entry

	// pinned maps a library leaf name to the directory that won its
	// first lookup. A real linker loads only one copy of a given soname,
	// so repeated lookups of the same name must land in the same place.
	pinned map[string]string
}

// NewResolver creates a resolver with per-crawl pin state initialized.
func NewResolver(defaultDirs, ldPath []string, sysroot string) *Resolver {
	return &Resolver{
		DefaultDirs: defaultDirs,
		LDPath:      ldPath,
		Sysroot:     strings.TrimRight(sysroot, "/"),
		pinned:      make(map[string]string),
	}
}

// Resolve turns one declared name into a concrete path. exeDir is the
// directory of the original root executable, selfDir the directory of
// the binary that declared the dependency, rpaths the transitive rpath
// list accumulated along the load chain.
func (r *Resolver) Resolve(name, exeDir, selfDir string, rpaths []string) Resolution {
	if r.pinned == nil {
		r.pinned = make(map[string]string)
	}
	name = vocab.Substitute(name, selfDir, exeDir)

	if strings.HasPrefix(name, vocab.TokenRPath) {
		leaf := strings.TrimPrefix(name, vocab.TokenRPath)
		leaf = strings.TrimPrefix(leaf, "/")
		return r.search(leaf, exeDir, selfDir, rpaths)
	}

	if !strings.Contains(name, "/") {
		// Bare soname: full search order, same as an @rpath name.
		return r.search(name, exeDir, selfDir, rpaths)
	}

	// Token-free path, or a $SELFDIR/$EXEDIR path already substituted
	// above: existence check only, no search iteration.
	return r.checkDirect(filepath.Clean(name))
}

// search walks the lookup order: pinned winner, the rpath list, the
// loader path, then default directories with the sysroot prefixed.
func (r *Resolver) search(leaf, exeDir, selfDir string, rpaths []string) Resolution {
	if leaf == "" {
		return Resolution{}
	}

	rpathDirs := rpaths
	if pinnedDir, ok := r.pinned[leaf]; ok {
		rpathDirs = []string{pinnedDir}
	}
	for _, dir := range rpathDirs {
		dir = filepath.Clean(vocab.Substitute(dir, selfDir, exeDir))
		candidate := filepath.Join(dir, leaf)
		if fileExists(candidate) {
			r.pinned[leaf] = dir
			return r.won(candidate, dir)
		}
	}

	for _, dir := range r.LDPath {
		dir = filepath.Clean(dir)
		candidate := filepath.Join(dir, leaf)
		if fileExists(candidate) {
			r.pinned[leaf] = dir
			return r.won(candidate, dir)
		}
	}

	for _, dir := range r.DefaultDirs {
		dir = filepath.Clean(dir)
		native := filepath.Join(dir, leaf)
		nativeOK := fileExists(native)
		var sysOK bool
		var sysDir, sysPath string
		if r.Sysroot != "" {
			sysDir = filepath.Join(r.Sysroot, dir)
			sysPath = filepath.Join(sysDir, leaf)
			sysOK = fileExists(sysPath)
		}
		switch {
		case nativeOK && sysOK:
			winner, winnerDir := native, dir
			if r.PreferSysroot {
				winner, winnerDir = sysPath, sysDir
			}
			r.warnf("%s found both under sysroot (%s) and natively (%s); using %s",
				leaf, sysPath, native, winner)
			r.pinned[leaf] = winnerDir
			return r.won(winner, winnerDir)
		case nativeOK:
			r.pinned[leaf] = dir
			return r.won(native, dir)
		case sysOK:
			r.pinned[leaf] = sysDir
			return r.won(sysPath, sysDir)
		}
	}

	return Resolution{}
}

// checkDirect handles absolute and directory-relative names: use as-is,
// with the sysroot copy as the alternative when the native path is gone.
func (r *Resolver) checkDirect(path string) Resolution {
	nativeOK := fileExists(path)
	var sysPath string
	var sysOK bool
	if r.Sysroot != "" && filepath.IsAbs(path) {
		sysPath = filepath.Join(r.Sysroot, path)
		sysOK = fileExists(sysPath)
	}
	switch {
	case nativeOK && sysOK:
		winner := path
		if r.PreferSysroot {
			winner = sysPath
		}
		r.warnf("%s exists both under sysroot (%s) and natively; using %s",
			path, sysPath, winner)
		return r.wonDirect(winner)
	case nativeOK:
		return r.wonDirect(path)
	case sysOK:
		return r.wonDirect(sysPath)
	}
	return Resolution{}
}

func (r *Resolver) won(path, dir string) Resolution {
	return Resolution{
		Path:      path,
		SearchDir: dir,
		InSysroot: r.insideSysroot(path),
		Found:     true,
	}
}

func (r *Resolver) wonDirect(path string) Resolution {
	return Resolution{
		Path:      path,
		InSysroot: r.insideSysroot(path),
		Found:     true,
	}
}

func (r *Resolver) insideSysroot(path string) bool {
	if r.Sysroot == "" {
		return false
	}
	return path == r.Sysroot || strings.HasPrefix(path, r.Sysroot+string(filepath.Separator))
}

func (r *Resolver) warnf(format string, args ...interface{}) {
	if r.Logger != nil {
		r.Logger.Warnf(format, args...)
	}
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// DefaultLibraryDirs returns the platform default search directories for
// a binary of the given flavor and pointer width.
func DefaultLibraryDirs(isELF bool, wordSize int) []string {
	if !isELF {
		return []string{"/usr/lib", "/usr/local/lib"}
	}
	if wordSize == 8 {
		return []string{"/lib64", "/usr/lib64", "/lib", "/usr/lib"}
	}
	return []string{"/lib", "/usr/lib"}
}
