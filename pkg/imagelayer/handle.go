package imagelayer

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is the engine resource backing a layer. It is created with the layer
// and released by whoever owns the layer; a released handle never becomes
// valid again.
type Handle struct {
	id       uuid.UUID
	released atomic.Bool
}

// NewHandle allocates a live handle.
func NewHandle() *Handle {
	return &Handle{id: uuid.New()}
}

// ID returns the handle identity.
func (h *Handle) ID() uuid.UUID { return h.id }

// Release invalidates the handle. It reports whether this call released it.
func (h *Handle) Release() bool {
	return h.released.CompareAndSwap(false, true)
}

// Released reports whether the handle has been released.
func (h *Handle) Released() bool {
	return h.released.Load()
}
