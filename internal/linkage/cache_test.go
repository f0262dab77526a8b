package linkage

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkglink/linkage-cli/internal/binfmt"
	"github.com/pkglink/linkage-cli/internal/bintest"
)

// countingReader records how often each path is parsed.
type countingReader struct {
	inner Reader
	mu    sync.Mutex
	reads map[string]int
}

func (r *countingReader) Read(path, arch string) (*binfmt.Info, error) {
	r.mu.Lock()
	if r.reads == nil {
		r.reads = make(map[string]int)
	}
	r.reads[path]++
	r.mu.Unlock()
	return r.inner.Read(path, arch)
}

func (r *countingReader) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[path]
}

func TestCachedReaderParsesOnce(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "libfoo.so")
	writeBin(t, lib, bintest.BuildELF64(bintest.ELFOpts{
		SOName: "libfoo.so",
		Needed: []string{"libc.so.6"},
	}))

	counter := &countingReader{inner: RawReader{}}
	cached := &CachedReader{Inner: counter, Cache: NewParseCache()}

	first, err := cached.Read(lib, "")
	require.NoError(t, err)
	second, err := cached.Read(lib, "")
	require.NoError(t, err)

	assert.Equal(t, 1, counter.count(lib))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cached.Cache.Len())
}

func TestCachedReaderIsolatesHandles(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "libfoo.so")
	writeBin(t, lib, bintest.BuildELF64(bintest.ELFOpts{SOName: "libfoo.so"}))

	cached := &CachedReader{Inner: RawReader{}, Cache: NewParseCache()}

	first, err := cached.Read(lib, "")
	require.NoError(t, err)
	first.Handle.RootExeDir = "/crawl/one/bin"

	second, err := cached.Read(lib, "")
	require.NoError(t, err)
	assert.Empty(t, second.Handle.RootExeDir,
		"handle stamps must not leak through the cache")
	assert.Equal(t, "libfoo.so", second.SelfName)
}

func TestCachedReaderKeyIncludesArch(t *testing.T) {
	dir := t.TempDir()
	fat := filepath.Join(dir, "libuniversal.dylib")
	writeBin(t, fat, bintest.BuildFat(
		bintest.FatSlice{
			CPU: 0x01000007,
			Data: bintest.BuildMachO64(bintest.MachOOpts{
				Deps: []string{"/usr/lib/libintel.dylib"},
			}),
		},
		bintest.FatSlice{
			CPU: 0x0100000C,
			Data: bintest.BuildMachO64(bintest.MachOOpts{
				CPU:  0x0100000C,
				Deps: []string{"/usr/lib/libarm.dylib"},
			}),
		},
	))

	cached := &CachedReader{Inner: RawReader{}, Cache: NewParseCache()}
	intel, err := cached.Read(fat, "x86_64")
	require.NoError(t, err)
	arm, err := cached.Read(fat, "arm64")
	require.NoError(t, err)

	assert.Equal(t, []string{"/usr/lib/libintel.dylib"}, intel.NeededNames())
	assert.Equal(t, []string{"/usr/lib/libarm.dylib"}, arm.NeededNames())
	assert.Equal(t, 2, cached.Cache.Len())
}

func TestCachedReaderSharedAcrossCrawls(t *testing.T) {
	dir := t.TempDir()
	appA := filepath.Join(dir, "bin", "a")
	appB := filepath.Join(dir, "bin", "b")
	shared := filepath.Join(dir, "lib", "libshared.so")
	for _, app := range []string{appA, appB} {
		writeBin(t, app, bintest.BuildELF64(bintest.ELFOpts{
			Needed:  []string{"libshared.so"},
			RunPath: []string{"$ORIGIN/../lib"},
		}))
	}
	writeBin(t, shared, bintest.BuildELF64(bintest.ELFOpts{SOName: "libshared.so"}))

	counter := &countingReader{inner: RawReader{}}
	cache := NewParseCache()
	g := NewGraph(&CachedReader{Inner: counter, Cache: cache}, nil)

	for _, app := range []string{appA, appB} {
		links, err := g.Crawl(app, Options{Recurse: true, DefaultDirs: noDefaults})
		require.NoError(t, err)
		require.Len(t, links, 1)
	}

	// The shared library is parsed for the first crawl only.
	assert.Equal(t, 1, counter.count(shared))
}

func TestCachedReaderMissingFile(t *testing.T) {
	cached := &CachedReader{Inner: RawReader{}, Cache: NewParseCache()}
	_, err := cached.Read(filepath.Join(t.TempDir(), "gone"), "")
	assert.Error(t, err)
	assert.Equal(t, 0, cached.Cache.Len())
}
