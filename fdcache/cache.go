package fdcache

import (
	"os"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// entry is one cached file handle, keyed by its owning bucket's path.
type entry struct {
	file *os.File
	live bool // false once closed and not yet reused
}

// bucket holds every cached slot for a single path. The top-level map is
// an xsync.MapOf: the cache is a process-wide singleton that may end up
// touched by more than one pipeline's goroutine (see assuan.Server), and a
// concurrent map costs nothing here.
type bucket struct {
	mu      sync.Mutex
	path    string
	entries []*entry
}

// Cache is a path-keyed pool of closed-but-reusable file handles.
type Cache struct {
	buckets *xsync.MapOf[string, *bucket]
}

// New returns an empty Cache. Most callers use the package-level Default
// instead of constructing their own.
func New() *Cache {
	return &Cache{buckets: xsync.NewMapOf[string, *bucket]()}
}

// Default is the process-wide singleton close cache.
var Default = New()

// normalize applies the path comparison rule: on
// platforms with two interchangeable separators, fold backslash to
// forward slash so "a\b" and "a/b" name the same cache bucket. Elsewhere
// this is a no-op (see cache_windows.go for the build-tagged override).
var normalize = func(path string) string { return path }

func (c *Cache) bucketFor(path string) *bucket {
	key := normalize(path)
	b, _ := c.buckets.LoadOrCompute(key, func() *bucket {
		return &bucket{path: key}
	})
	return b
}

// Close caches f under path for later reuse, unless path is empty or
// cacheable is false, in which case it is closed immediately.
func (c *Cache) Close(path string, f *os.File, cacheable bool) error {
	if path == "" || !cacheable {
		return f.Close()
	}

	b := c.bucketFor(path)
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		if !e.live {
			// a freed slot normally holds no handle (Open detached it);
			// drop a stale one if it somehow does
			if e.file != nil {
				e.file.Close()
			}
			e.file = f
			e.live = true
			return nil
		}
	}
	b.entries = append(b.entries, &entry{file: f, live: true})
	return nil
}

// Open looks for a live cached handle at path, rewinds it to offset 0, and
// returns it detached from the cache. If rewinding fails the slot is
// invalidated and Open returns ErrInvalid along with a false ok so the
// caller can fall back to a fresh os.Open.
func (c *Cache) Open(path string) (f *os.File, ok bool, err error) {
	b := c.bucketFor(path)
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		if !e.live {
			continue
		}
		if _, serr := e.file.Seek(0, 0); serr != nil {
			e.file.Close()
			e.file = nil
			e.live = false
			return nil, false, ErrInvalid
		}
		f = e.file
		e.file = nil // detached: the slot must not keep the handed-out handle
		e.live = false
		return f, true, nil
	}
	return nil, false, nil
}

// Invalidate closes and frees every live slot for path. Must be called
// before opening a path for writing, so a stale cached reader doesn't
// shadow the fresh file.
func (c *Cache) Invalidate(path string) {
	b := c.bucketFor(path)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.live {
			e.file.Close()
			e.file = nil
			e.live = false
		}
	}
}

// Synchronize issues a durability barrier (fsync) on any live slot for
// path.
func (c *Cache) Synchronize(path string) error {
	b := c.bucketFor(path)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.live {
			if err := e.file.Sync(); err != nil {
				return err
			}
		}
	}
	return nil
}
