package imagelayer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrUseAfterDestroy indicates an operation on a layer whose engine handle was released
	ErrUseAfterDestroy = errors.New("layer used after destroy")

	// ErrNegativeDuration indicates a layer or content created with a negative duration
	ErrNegativeDuration = errors.New("duration must not be negative")

	// ErrInvalidVideoRange indicates a video range that is negative or reaches past the content
	ErrInvalidVideoRange = errors.New("invalid video range")

	// ErrForeignScene indicates a layer that does not belong to the scene being read
	ErrForeignScene = errors.New("layer belongs to another scene")

	// ErrUnknownDurationPolicy indicates a duration policy name that is not recognised
	ErrUnknownDurationPolicy = errors.New("unknown duration policy")

	// ErrUnknownEditableIndex indicates an editable index no live layer of the scene shares
	ErrUnknownEditableIndex = errors.New("no layer with this editable index")

	// ErrLayerNotFound indicates a layer record was not found
	ErrLayerNotFound = errors.New("layer not found")

	// ErrObjectNotFound indicates a payload object was not found in a blob store
	ErrObjectNotFound = errors.New("object not found")
)

// LayerError represents an error related to a layer operation
type LayerError struct {
	LayerID uuid.UUID
	Op      string
	Err     error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer operation %s failed for layer %s: %v", e.Op, e.LayerID, e.Err)
}

func (e *LayerError) Unwrap() error {
	return e.Err
}

// RangeError reports the video range that failed validation
type RangeError struct {
	Range VideoRange
	Err   error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("video range [start=%d duration=%d]: %v", e.Range.Start, e.Range.Duration, e.Err)
}

func (e *RangeError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to payload storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
