package linkage

import (
	"sync"

	"github.com/pkglink/linkage-cli/internal/binfmt"
)

// ParseCache memoizes reader results keyed by a stable file identity.
// Real package trees re-parse the same system libraries from many root
// binaries; this avoids re-reading a C runtime thousands of times. The
// cache is an explicit object the caller owns and injects, so lifetime
// and invalidation stay under caller control instead of being tied to
// the process.
type ParseCache struct {
	mu      sync.Mutex
	entries map[string]*binfmt.Info
}

// NewParseCache creates an empty cache.
func NewParseCache() *ParseCache {
	return &ParseCache{entries: make(map[string]*binfmt.Info)}
}

// Len returns the number of cached parses.
func (c *ParseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ParseCache) get(key string) (*binfmt.Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.entries[key]
	return info, ok
}

func (c *ParseCache) put(key string, info *binfmt.Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = info
}

// CachedReader wraps a Reader with a ParseCache. A file whose identity
// key cannot be computed is read through uncached.
type CachedReader struct {
	Inner Reader
	Cache *ParseCache
}

func (r *CachedReader) Read(path, arch string) (*binfmt.Info, error) {
	key, ok := fileIdentity(path)
	if !ok || r.Cache == nil {
		return r.Inner.Read(path, arch)
	}
	key += "|" + arch
	if info, hit := r.Cache.get(key); hit {
		return copyInfo(info), nil
	}
	info, err := r.Inner.Read(path, arch)
	if err != nil {
		return nil, err
	}
	r.Cache.put(key, info)
	return copyInfo(info), nil
}

// copyInfo returns a shallow copy of a cached record. The crawl stamps
// crawl-specific handle fields (the root executable directory) onto the
// records it processes; handing out copies keeps those stamps off the
// shared cache entry. The slices stay shared, nothing mutates them.
func copyInfo(info *binfmt.Info) *binfmt.Info {
	out := *info
	return &out
}
