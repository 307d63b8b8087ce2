// Package cache maps opaque frame identifiers to frame bytes so
// identifiers, not bulky byte arrays, can travel between components.
package cache

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/kstaniek/velbus-bridge/internal/protocol"
)

// ErrNotFound is returned by Get for an identifier that is unknown or
// has already been deleted.
var ErrNotFound = errors.New("cache: frame id not found")

// Cache is a process-wide, concurrency-safe FrameId -> Frame registry.
// There is no TTL; callers delete explicitly once every known consumer
// has observed the frame.
type Cache struct {
	mu     sync.RWMutex
	frames map[string]protocol.Frame
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{frames: make(map[string]protocol.Frame)}
}

// Put registers fr under a freshly minted identifier and returns it.
func (c *Cache) Put(fr protocol.Frame) string {
	id := newID()
	c.mu.Lock()
	c.frames[id] = fr
	c.mu.Unlock()
	return id
}

// Get resolves an identifier to its frame bytes.
func (c *Cache) Get(id string) (protocol.Frame, error) {
	c.mu.RLock()
	fr, ok := c.frames[id]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return fr, nil
}

// Delete removes an identifier. It is idempotent.
func (c *Cache) Delete(id string) {
	c.mu.Lock()
	delete(c.frames, id)
	c.mu.Unlock()
}

// Len returns the number of frames currently cached (for tests/metrics).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// newID mints an opaque, globally-unique string-shaped tag. No ecosystem
// library in the pack provides UUID generation, so this is built directly
// on crypto/rand for uniqueness without a third-party dependency.
func newID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	// RFC 4122 version/variant bits, purely cosmetic here since the tag
	// is opaque, but keeps the shape familiar.
	b[6] = (b[6] & 0x0F) | 0x40
	b[8] = (b[8] & 0x3F) | 0x80
	return hex.EncodeToString(b[:4]) + "-" + hex.EncodeToString(b[4:6]) + "-" +
		hex.EncodeToString(b[6:8]) + "-" + hex.EncodeToString(b[8:10]) + "-" +
		hex.EncodeToString(b[10:])
}
