package gocompositor

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors a composition request can finish with. They are wrapped with more context,
// so match them with errors.Is.
var (
	// ErrMissingDestinationBuffer happens when the render context cannot supply a buffer to draw into.
	ErrMissingDestinationBuffer = errors.New("cannot retrieve destination pixel buffer")
	// ErrMissingBackgroundBuffer happens when the request has no frame for the background track.
	ErrMissingBackgroundBuffer = errors.New("cannot retrieve background pixel buffer")
	// ErrMissingForegroundBuffer happens when the request has no frame for the foreground track.
	ErrMissingForegroundBuffer = errors.New("cannot retrieve foreground pixel buffer")
	// ErrCannotCreateFormatDescription happens when the destination buffer cannot be described.
	ErrCannotCreateFormatDescription = errors.New("cannot create pixel format description")
	// ErrCompositeFailed happens when the filtered images produce nothing to draw.
	ErrCompositeFailed = errors.New("cannot compose images")
	// ErrQueueFull happens when a request is dropped by the queue's overflow policy.
	ErrQueueFull = errors.New("composition queue is full")
	// ErrCompositorClosed happens when a request arrives at or is pending in a closed compositor.
	ErrCompositorClosed = errors.New("compositor is closed")
	// ErrRequestCancelled happens when pending requests are cancelled before being composited.
	ErrRequestCancelled = errors.New("composition request cancelled")
)

// An UnsupportedPixelFormatError is raised, as a panic, when a frame is described
// with a pixel format the compositor cannot draw. It means the caller was misconfigured.
type UnsupportedPixelFormatError struct {
	Format PixelFormat
}

func newUnsupportedPixelFormatError(format PixelFormat) *UnsupportedPixelFormatError {
	return &UnsupportedPixelFormatError{Format: format}
}

func (e *UnsupportedPixelFormatError) Error() string {
	return fmt.Sprintf("invalid input pixel buffer type %s; only %s is supported", e.Format, PixelFormat32BGRA)
}
