package gocompositor

import (
	"image"
	"sync"
)

// A CompositionRequest asks for a single composited frame. The compositor takes
// the destination from the request's render context, reads the source frames by
// track and finishes the request exactly once.
type CompositionRequest interface {
	// RenderContext supplies the buffer the frame is drawn into.
	RenderContext() RenderContext
	// SourceFrame returns the decoded frame of the given track, if there is one.
	SourceFrame(track TrackID) (image.Image, bool)
	// Finish delivers the composited frame.
	Finish(composed FrameBuffer)
	// FinishWithError reports why no frame was composited.
	FinishWithError(err error)
}

// NewCompositionRequest returns a request drawing sources into a buffer from rc.
// done is called once with either the composited buffer or an error.
func NewCompositionRequest(
	rc RenderContext,
	sources map[TrackID]image.Image,
	done func(composed FrameBuffer, err error),
) CompositionRequest {
	return &compositionRequest{renderContext: rc, sources: sources, done: done}
}

type compositionRequest struct {
	renderContext RenderContext
	sources       map[TrackID]image.Image
	finishOnce    sync.Once
	done          func(FrameBuffer, error)
}

func (req *compositionRequest) RenderContext() RenderContext {
	return req.renderContext
}

func (req *compositionRequest) SourceFrame(track TrackID) (image.Image, bool) {
	img, ok := req.sources[track]
	if !ok || img == nil {
		return nil, false
	}
	return img, true
}

func (req *compositionRequest) Finish(composed FrameBuffer) {
	req.finish(composed, nil)
}

func (req *compositionRequest) FinishWithError(err error) {
	req.finish(nil, err)
}

func (req *compositionRequest) finish(composed FrameBuffer, err error) {
	req.finishOnce.Do(func() {
		if req.done != nil {
			req.done(composed, err)
		}
	})
}
