package linkage

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/pkglink/linkage-cli/internal/binfmt"
	"github.com/pkglink/linkage-cli/internal/resolve"
	"github.com/pkglink/linkage-cli/internal/vocab"
)

// ResolvedLinkage is one entry of a crawl's result set: a declared
// dependency name together with where it currently resolves on disk.
// Path is empty exactly when no searched directory held the file, which
// is a reportable state, not an error.
type ResolvedLinkage struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	SearchDir string `json:"search_dir,omitempty"`
	InSysroot bool   `json:"in_sysroot"`
}

// Options parameterize a single crawl. The zero value crawls the direct
// dependencies only, with platform default directories and no sysroot.
type Options struct {
	// Recurse walks into resolved dependencies transitively.
	Recurse bool
	// Arch selects the slice of fat Mach-O binaries ("x86_64", "arm64",
	// ...); empty takes the first slice.
	Arch string
	// Sysroot is the reserved build prefix, used both as an alternate
	// search root and as the inside/outside boundary reported on every
	// result.
	Sysroot string
	// LDPath is the caller-injected dynamic-loader search path.
	LDPath []string
	// DefaultDirs overrides the platform default library directories.
	DefaultDirs []string
	// PreferSysroot flips the resolver's both-exist preference.
	PreferSysroot bool
}

// Graph resolves the transitive dependency closure of a root binary.
// Each Crawl call is independent and side-effect free; concurrent calls
// over different roots need no locking.
type Graph struct {
	reader Reader
	logger *logrus.Entry
}

// NewGraph creates a graph over the given reader. logger may be nil.
func NewGraph(reader Reader, logger *logrus.Entry) *Graph {
	return &Graph{reader: reader, logger: logger}
}

// workItem is one enqueued binary plus the rpath entries inherited from
// the chain of parents that loaded it, already substituted to concrete
// directories at their declaration sites.
type workItem struct {
	path      string
	inherited []string
}

// Crawl resolves every dependency reachable from rootPath and returns
// the deduplicated, sorted result set. The traversal is breadth first
// over an explicit worklist; a visited set keyed by library identity
// (SONAME, install name, else resolved path) guarantees termination and
// keeps any library parsed once even when several parents declare it.
func (g *Graph) Crawl(rootPath string, opts Options) ([]ResolvedLinkage, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	rootInfo, err := g.reader.Read(absRoot, opts.Arch)
	if err != nil {
		return nil, err
	}
	exeDir := filepath.Dir(absRoot)
	rootInfo.Handle.RootExeDir = exeDir

	defaultDirs := opts.DefaultDirs
	if defaultDirs == nil {
		defaultDirs = resolve.DefaultLibraryDirs(
			rootInfo.Handle.Format.IsELF(), rootInfo.Handle.WordSize)
	}
	resolver := resolve.NewResolver(defaultDirs, opts.LDPath, opts.Sysroot)
	resolver.PreferSysroot = opts.PreferSysroot
	resolver.Logger = g.logger

	results := make(map[ResolvedLinkage]struct{})
	visited := map[string]bool{absRoot: true}
	if rootInfo.SelfName != "" {
		visited[rootInfo.SelfName] = true
	}

	queue := []workItem{{path: absRoot}}
	first := true
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		var info *binfmt.Info
		if first {
			info, first = rootInfo, false
		} else {
			info, err = g.reader.Read(item.path, opts.Arch)
			if err != nil {
				g.warnf("failed to read %s during crawl: %v", item.path, err)
				continue
			}
			info.Handle.RootExeDir = exeDir
			// Two paths can present the same identity; a real linker
			// loads only one copy, so expand the first and drop the rest.
			if key := info.SelfName; key != "" {
				if visited[key] {
					continue
				}
				visited[key] = true
			}
		}

		selfDir := filepath.Dir(item.path)
		search := make([]string, 0, len(item.inherited)+len(info.RPaths.Own))
		search = append(search, item.inherited...)
		for _, dir := range info.RPaths.Own {
			search = append(search,
				filepath.Clean(vocab.Substitute(dir, selfDir, exeDir)))
		}

		childInherited := search
		if !info.RPaths.OwnTransitive {
			// RUNPATH applies to this binary's direct dependencies only.
			childInherited = nil
		}

		for _, name := range info.NeededNames() {
			res := resolver.Resolve(name, exeDir, selfDir, search)
			results[ResolvedLinkage{
				Name:      name,
				Path:      res.Path,
				SearchDir: res.SearchDir,
				InSysroot: res.InSysroot,
			}] = struct{}{}
			if !res.Found {
				g.warnf("dependency %s of %s not found on any search path", name, item.path)
				continue
			}
			if opts.Recurse && res.Path != item.path && !visited[res.Path] {
				visited[res.Path] = true
				queue = append(queue, workItem{
					path:      res.Path,
					inherited: childInherited,
				})
			}
		}
	}

	out := make([]ResolvedLinkage, 0, len(results))
	for link := range results {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// DeclaredNames returns the as-declared dependency strings instead of
// resolved paths, for callers that only display what a binary asks for.
// With Recurse set, resolution still happens internally to find the
// children, but only the declared names are reported.
func (g *Graph) DeclaredNames(rootPath string, opts Options) ([]string, error) {
	if !opts.Recurse {
		info, err := g.reader.Read(rootPath, opts.Arch)
		if err != nil {
			return nil, err
		}
		names := info.NeededNames()
		sort.Strings(names)
		return dedupStrings(names), nil
	}

	links, err := g.Crawl(rootPath, opts)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(links))
	for _, link := range links {
		names = append(names, link.Name)
	}
	sort.Strings(names)
	return dedupStrings(names), nil
}

func dedupStrings(sorted []string) []string {
	out := sorted[:0]
	var prev string
	for i, s := range sorted {
		if i > 0 && s == prev {
			continue
		}
		out = append(out, s)
		prev = s
	}
	return out
}

func (g *Graph) warnf(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Warnf(format, args...)
	}
}
