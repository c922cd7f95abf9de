package api

import (
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/imagelayer/pkg/imagelayer"
)

// ContentLibrary holds the replacement contents that layers may be assigned.
// Layers only reference contents, so the library keeps them alive.
type ContentLibrary struct {
	mu       sync.RWMutex
	contents map[uuid.UUID]*imagelayer.Content
}

// NewContentLibrary creates an empty library
func NewContentLibrary() *ContentLibrary {
	return &ContentLibrary{contents: make(map[uuid.UUID]*imagelayer.Content)}
}

// Add registers content under its id
func (l *ContentLibrary) Add(content *imagelayer.Content) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contents[content.ID()] = content
}

// Get looks up a content by id
func (l *ContentLibrary) Get(id uuid.UUID) (*imagelayer.Content, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.contents[id]
	return c, ok
}

// Len returns the number of registered contents
func (l *ContentLibrary) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.contents)
}
