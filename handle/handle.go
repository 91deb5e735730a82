// Package handle implements revocable references to in-memory byte payloads.
//
// A Handle is the Go counterpart of a browser blob URL: it names a payload by
// an opaque "blob:" URL that can be resolved through its Store until the
// handle is released. Whoever receives a Handle owns it and must call Release
// exactly once; later calls are no-ops.
package handle

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const scheme = "blob:"

// Handle is a revocable reference to a byte payload.
type Handle struct {
	url   string
	data  []byte
	store *Store

	released  atomic.Bool
	once      sync.Once
	onRelease func()
}

// URL returns the blob URL naming this handle.
func (h *Handle) URL() string { return h.url }

// Bytes returns the payload, or nil once the handle has been released.
// The returned slice is shared; callers must not modify it.
func (h *Handle) Bytes() []byte {
	if h.released.Load() {
		return nil
	}
	return h.data
}

// Size is the payload length in bytes.
func (h *Handle) Size() int { return len(h.data) }

// Released reports whether Release has run.
func (h *Handle) Released() bool { return h.released.Load() }

// Release revokes the handle. It returns true only for the call that actually
// revoked it.
func (h *Handle) Release() bool {
	if h == nil {
		return false
	}
	revoked := false
	h.once.Do(func() {
		revoked = true
		h.released.Store(true)
		h.store.remove(h.url)
		if h.onRelease != nil {
			h.onRelease()
		}
	})
	return revoked
}

// Store issues handles and resolves their URLs. Safe for concurrent use.
// The zero value is not usable; construct with NewStore.
type Store struct {
	mu      sync.RWMutex
	live    map[string]*Handle
	issued  atomic.Uint64
	revoked atomic.Uint64
}

func NewStore() *Store {
	return &Store{live: make(map[string]*Handle)}
}

// Create registers data under a fresh blob URL. data is not copied.
func (s *Store) Create(data []byte) *Handle {
	return s.CreateWithRelease(data, nil)
}

// CreateWithRelease is like Create; onRelease runs once, after the handle was
// revoked. It must not call back into the handle.
func (s *Store) CreateWithRelease(data []byte, onRelease func()) *Handle {
	h := &Handle{
		url:       scheme + uuid.NewString(),
		data:      data,
		store:     s,
		onRelease: onRelease,
	}
	s.mu.Lock()
	s.live[h.url] = h
	s.mu.Unlock()
	s.issued.Add(1)
	return h
}

// Resolve returns the payload for a live blob URL.
func (s *Store) Resolve(url string) ([]byte, bool) {
	s.mu.RLock()
	h, ok := s.live[url]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return h.data, true
}

// Outstanding is the number of issued handles not yet released.
func (s *Store) Outstanding() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// Counters returns how many handles were issued and revoked so far.
func (s *Store) Counters() (issued, revoked uint64) {
	return s.issued.Load(), s.revoked.Load()
}

func (s *Store) remove(url string) {
	s.mu.Lock()
	delete(s.live, url)
	s.mu.Unlock()
	s.revoked.Add(1)
}
