// Package imagelayer provides the replaceable-content layer of a
// timeline-driven composition: an image layer whose visible content can be
// swapped at runtime without touching the animation around it.
//
// An ImageLayer maps time between its own timeline and the native timeline of
// its active content, exposes the video ranges the content declares as valid
// replacement windows, and applies replacements either to itself (SetImage) or
// to every layer of the scene sharing its editable index (ReplaceImage).
//
// Lifetime
//
// Layers are backed by a Handle owned by the caller that created them. Once
// the handle is released every layer operation fails with ErrUseAfterDestroy.
//
// Consistency
//
// Every operation runs inside the owning Scene's rewind barrier, so a reader
// never observes a partially applied broadcast. Implementations of Scene live
// under the scene subpackage; scene descriptions and payloads are persisted
// through Repository and BlobStore implementations under repo and storage.
package imagelayer
