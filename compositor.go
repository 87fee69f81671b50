// Package gocompositor composites two video tracks into picture-in-picture frames.
// Each track runs through its own hot-swappable chain of image filters before the
// foreground is drawn over the background.
package gocompositor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// A BufferRecycler is a RenderContext that takes back buffers of requests that failed.
type BufferRecycler interface {
	RecycleBuffer(buf FrameBuffer)
}

// RecycleBuffer returns a PixelBuffer handed out by the pool.
func (p *PixelBufferPool) RecycleBuffer(buf FrameBuffer) {
	if pb, ok := buf.(*PixelBuffer); ok {
		p.Put(pb)
	}
}

// A VideoCompositor composites requests one at a time, in the order they were
// submitted, on a dedicated goroutine.
type VideoCompositor struct {
	mu       sync.RWMutex
	submitMu sync.Mutex
	closed   bool
	config   CompositorConfig
	filters  *FilterChainTable
	requests chan queuedRequest

	// renderer is only used by the worker.
	renderer       *PictureInPictureRenderer
	resetRequested atomic.Bool

	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
	logger                  golog.Logger
}

type queuedRequest struct {
	id  uuid.UUID
	req CompositionRequest
}

type finishedRequest struct {
	req CompositionRequest
	err error
}

// NewVideoCompositor returns a compositor that is ready to accept requests.
func NewVideoCompositor(config CompositorConfig) *VideoCompositor {
	config = config.withDefaults()
	cancelCtx, cancel := context.WithCancel(context.Background())
	vc := &VideoCompositor{
		config:    config,
		filters:   NewFilterChainTable(),
		requests:  make(chan queuedRequest, config.QueueSize),
		renderer:  NewPictureInPictureRenderer(config.ParallelFilters, config.Logger),
		cancelCtx: cancelCtx,
		cancel:    cancel,
		logger:    config.Logger,
	}
	vc.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(vc.processRequests, vc.activeBackgroundWorkers.Done)
	return vc
}

// SourcePixelFormats returns the pixel formats source frames are expected in.
func (vc *VideoCompositor) SourcePixelFormats() []PixelFormat {
	return []PixelFormat{PixelFormat32BGRA}
}

// RequiredPixelFormats returns the pixel formats destination buffers must have.
func (vc *VideoCompositor) RequiredPixelFormats() []PixelFormat {
	return []PixelFormat{PixelFormat32BGRA}
}

// SetFilters replaces the filter chain of the given track. Frames already being
// composited may still use the previous chain.
func (vc *VideoCompositor) SetFilters(chain FilterChain, track TrackID) {
	vc.filters.Set(track, chain)
	vc.logger.Debugw("set filters", "track", track, "filters", len(chain))
}

// Filters returns the filter chain of the given track.
func (vc *VideoCompositor) Filters(track TrackID) FilterChain {
	return vc.filters.Get(track)
}

// RenderContextChanged makes the compositor prepare its renderer again, from the
// next destination buffer it composites into.
func (vc *VideoCompositor) RenderContextChanged() {
	vc.resetRequested.Store(true)
}

// Pending returns how many requests are waiting to be composited.
func (vc *VideoCompositor) Pending() int {
	return len(vc.requests)
}

// StartRequest queues req for composition and returns without waiting for it.
// Unless the overflow policy is OverflowBlock, it never blocks. Composited requests
// finish in submission order. A request dropped because the queue is full finishes
// with ErrQueueFull on the submitting goroutine, possibly before older requests.
func (vc *VideoCompositor) StartRequest(req CompositionRequest) {
	for _, f := range vc.enqueue(req) {
		f.req.FinishWithError(f.err)
	}
}

// enqueue queues req and returns the requests that must be finished because of it.
func (vc *VideoCompositor) enqueue(req CompositionRequest) []finishedRequest {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	if vc.closed {
		return []finishedRequest{{req, errors.WithStack(ErrCompositorClosed)}}
	}
	item := queuedRequest{id: uuid.New(), req: req}

	switch vc.config.OverflowPolicy {
	case OverflowBlock:
		select {
		case vc.requests <- item:
			return nil
		case <-vc.cancelCtx.Done():
			return []finishedRequest{{req, errors.WithStack(ErrCompositorClosed)}}
		}
	case OverflowDropNewest:
		select {
		case vc.requests <- item:
			return nil
		default:
			vc.logger.Debugw("dropping newest request", "request", item.id)
			return []finishedRequest{{req, errors.Wrapf(ErrQueueFull, "%d requests pending", vc.config.QueueSize)}}
		}
	default:
		vc.submitMu.Lock()
		defer vc.submitMu.Unlock()
		var dropped []finishedRequest
		for {
			select {
			case vc.requests <- item:
				return dropped
			default:
			}
			select {
			case oldest := <-vc.requests:
				vc.logger.Debugw("dropping oldest request", "request", oldest.id)
				dropped = append(dropped, finishedRequest{
					oldest.req,
					errors.Wrapf(ErrQueueFull, "%d requests pending", vc.config.QueueSize),
				})
			default:
			}
		}
	}
}

// CancelAllPendingRequests finishes every queued request with ErrRequestCancelled.
// The request being composited, if any, still completes.
func (vc *VideoCompositor) CancelAllPendingRequests() {
	for _, item := range vc.drain() {
		item.req.FinishWithError(errors.WithStack(ErrRequestCancelled))
	}
}

func (vc *VideoCompositor) drain() []queuedRequest {
	vc.submitMu.Lock()
	defer vc.submitMu.Unlock()
	var drained []queuedRequest
	for {
		select {
		case item := <-vc.requests:
			drained = append(drained, item)
		default:
			return drained
		}
	}
}

// Close stops the compositor after the request being composited, if any, completes.
// Queued and later requests finish with ErrCompositorClosed.
func (vc *VideoCompositor) Close(_ context.Context) error {
	vc.cancel()
	vc.mu.Lock()
	alreadyClosed := vc.closed
	vc.closed = true
	vc.mu.Unlock()
	if alreadyClosed {
		return nil
	}
	vc.activeBackgroundWorkers.Wait()
	for _, item := range vc.drain() {
		item.req.FinishWithError(errors.WithStack(ErrCompositorClosed))
	}
	vc.renderer.Reset()
	return nil
}

func (vc *VideoCompositor) processRequests() {
	for {
		select {
		case <-vc.cancelCtx.Done():
			return
		default:
		}
		select {
		case <-vc.cancelCtx.Done():
			return
		case item := <-vc.requests:
			vc.processRequest(item)
		}
	}
}

// processRequest composites one request. A panic while compositing finishes the
// request with an error, returns its destination and resets the renderer, and the
// worker goes on with the next request.
func (vc *VideoCompositor) processRequest(item queuedRequest) {
	logger := vc.logger.With("request", item.id.String())
	rc := item.req.RenderContext()
	var (
		dst       FrameBuffer
		delivered bool
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("panic while compositing", "panic", r)
			if !delivered {
				recycle(rc, dst)
			}
			vc.renderer.Reset()
			item.req.FinishWithError(errors.Errorf("panic while compositing: %v", r))
		}
	}()

	if vc.resetRequested.CompareAndSwap(true, false) {
		vc.renderer.Reset()
	}
	var err error
	dst, err = acquireDestination(rc)
	if err != nil {
		logger.Debugw("failed to get destination buffer", "error", err)
		item.req.FinishWithError(err)
		return
	}
	composed, err := vc.compose(item.req, dst, logger)
	if err != nil {
		logger.Debugw("failed to composite frame", "error", err)
		recycle(rc, dst)
		item.req.FinishWithError(err)
		return
	}
	delivered = true
	item.req.Finish(composed)
}

func acquireDestination(rc RenderContext) (FrameBuffer, error) {
	if rc == nil {
		return nil, errors.Wrap(ErrMissingDestinationBuffer, "no render context")
	}
	dst, err := rc.NewPixelBuffer()
	if err != nil {
		return nil, errors.Wrap(ErrMissingDestinationBuffer, err.Error())
	}
	if dst == nil {
		return nil, errors.WithStack(ErrMissingDestinationBuffer)
	}
	return dst, nil
}

func recycle(rc RenderContext, dst FrameBuffer) {
	if dst == nil {
		return
	}
	if recycler, ok := rc.(BufferRecycler); ok {
		recycler.RecycleBuffer(dst)
	}
}

func (vc *VideoCompositor) compose(req CompositionRequest, dst FrameBuffer, logger golog.Logger) (FrameBuffer, error) {
	desc, err := NewFormatDescription(dst)
	if err != nil {
		return nil, errors.Wrap(ErrCannotCreateFormatDescription, err.Error())
	}
	bg, ok := req.SourceFrame(vc.config.BackgroundTrackID)
	if !ok {
		return nil, errors.Wrapf(ErrMissingBackgroundBuffer, "track %d", vc.config.BackgroundTrackID)
	}
	fg, ok := req.SourceFrame(vc.config.ForegroundTrackID)
	if !ok {
		return nil, errors.Wrapf(ErrMissingForegroundBuffer, "track %d", vc.config.ForegroundTrackID)
	}

	if !vc.renderer.IsPrepared() {
		vc.renderer.Prepare(desc)
	}
	bgChain := vc.filters.Get(vc.config.BackgroundTrackID)
	fgChain := vc.filters.Get(vc.config.ForegroundTrackID)

	if err := vc.renderer.Render(bg, bgChain, fg, fgChain, dst); err != nil {
		if vc.config.DropFailedComposites {
			logger.Warnw("delivering unmodified frame", "error", err)
			return dst, nil
		}
		return nil, err
	}
	return dst, nil
}
