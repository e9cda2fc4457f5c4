package hxnet

import (
	"sync"
)

// ComponentCache maps render identities to built components for one page.
//
// A page keeps its cache for its whole lifetime, so a component built on the
// first visit is served from here on every later visit. The engine only
// writes to the cache outside temporary renders.
type ComponentCache struct {
	mu         sync.RWMutex
	components map[string]*BuiltComponent
}

// NewComponentCache creates an empty cache.
func NewComponentCache() *ComponentCache {
	return &ComponentCache{components: make(map[string]*BuiltComponent)}
}

// Get returns the component built for identity, if any.
func (c *ComponentCache) Get(identity string) (*BuiltComponent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.components[identity]
	return b, ok
}

// Insert stores a built component under identity, replacing any previous one.
func (c *ComponentCache) Insert(identity string, b *BuiltComponent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[identity] = b
}

// Len returns the number of cached components.
func (c *ComponentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.components)
}

// Reset drops every cached component.
func (c *ComponentCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.components)
}

// GlobalEntry is a page-independent resource bundle: the scripts and the
// scoped style of one component declaration, or a free-standing style or
// script added with AddStyle/AddScript.
type GlobalEntry struct {
	Scripts []Script
	Style   *RenderedStyle
}

// GlobalStore is an append-only, process-lifetime store of GlobalEntry
// values keyed by resource id. Every entry is constructed at most once.
type GlobalStore struct {
	mu      sync.Mutex
	entries map[string]*GlobalEntry
	order   []string
}

// NewGlobalStore creates an empty store.
func NewGlobalStore() *GlobalStore {
	return &GlobalStore{entries: make(map[string]*GlobalEntry)}
}

var globals = sync.OnceValue(NewGlobalStore)

// Globals returns the process-wide store shared by every engine that was not
// given its own.
func Globals() *GlobalStore {
	return globals()
}

// Add inserts the entry returned by init under id unless id is present.
// init runs only on a miss. Add reports whether an insertion happened.
//
// init runs with the store locked and must not call back into the store or
// render anything.
func (s *GlobalStore) Add(id string, init func() *GlobalEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		return false
	}
	entry := init()
	if entry == nil {
		entry = &GlobalEntry{}
	}
	s.entries[id] = entry
	s.order = append(s.order, id)
	return true
}

// Get returns the entry stored under id. The entry is shared and must be
// treated as read-only.
func (s *GlobalStore) Get(id string) (*GlobalEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

// IDs returns the stored ids in insertion order.
func (s *GlobalStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Clear empties the store. Intended for tests.
func (s *GlobalStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	s.order = nil
}
