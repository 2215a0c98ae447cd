// Package identity resolves numeric uid/gid values to textual names
// through the OS user/group databases, caching results for the life of
// the process. A cache hit returns the stored value with no syscall; a
// miss calls into os/user and caches whatever it gets back — including a
// fallback to the numeric id as a string when the lookup fails, so a
// persistently-unresolvable id is never retried on every record.
package identity

import (
	"strconv"
	"sync"

	"os/user"
)

// fifoCache is a bounded uint32->string cache that evicts the oldest
// entry once full, bounding memory use against a pathological number of
// distinct ids without needing any notion of recency.
type fifoCache struct {
	mu      sync.Mutex
	entries map[uint32]string
	order   []uint32
	maxSize int
}

func newFIFOCache(maxSize int) *fifoCache {
	return &fifoCache{
		entries: make(map[uint32]string, maxSize),
		maxSize: maxSize,
	}
}

func (c *fifoCache) get(id uint32) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[id]
	return v, ok
}

func (c *fifoCache) put(id uint32, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		c.entries[id] = name
		return
	}
	if len(c.entries) >= c.maxSize {
		evict := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, evict)
	}
	c.entries[id] = name
	c.order = append(c.order, id)
}

// defaultCacheSize is generous: real lstat dumps see at most a few
// thousand distinct uids/gids, so this cache is effectively unbounded in
// practice while still protecting against pathological inputs.
const defaultCacheSize = 1 << 16

// Resolver caches uid->owner and gid->group name resolution.
type Resolver struct {
	users  *fifoCache
	groups *fifoCache
}

// NewResolver returns a Resolver with empty caches.
func NewResolver() *Resolver {
	return &Resolver{
		users:  newFIFOCache(defaultCacheSize),
		groups: newFIFOCache(defaultCacheSize),
	}
}

// Owner resolves uid to a username, falling back to its decimal string
// representation (still cached) if the OS user database has no entry.
func (r *Resolver) Owner(uid uint32) string {
	if name, ok := r.users.get(uid); ok {
		return name
	}
	name := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(name); err == nil {
		name = u.Username
	}
	r.users.put(uid, name)
	return name
}

// Group resolves gid to a group name, with the same numeric-id fallback
// as Owner.
func (r *Resolver) Group(gid uint32) string {
	if name, ok := r.groups.get(gid); ok {
		return name
	}
	name := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(name); err == nil {
		name = g.Name
	}
	r.groups.put(gid, name)
	return name
}
