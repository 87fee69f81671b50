package gocompositor

import (
	"github.com/edaniels/golog"
)

// An OverflowPolicy decides what happens to a request submitted while the queue is full.
type OverflowPolicy int

const (
	// OverflowDropOldest finishes the oldest queued request with ErrQueueFull to make room.
	OverflowDropOldest OverflowPolicy = iota
	// OverflowDropNewest finishes the submitted request with ErrQueueFull.
	OverflowDropNewest
	// OverflowBlock makes the submitter wait for room.
	OverflowBlock
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop_oldest"
	case OverflowDropNewest:
		return "drop_newest"
	case OverflowBlock:
		return "block"
	default:
		return "unknown"
	}
}

// DefaultQueueSize is used when a CompositorConfig does not set QueueSize.
const DefaultQueueSize = 8

// A CompositorConfig describes how a VideoCompositor should be managed.
type CompositorConfig struct {
	// QueueSize bounds how many requests may wait to be composited.
	QueueSize      int
	OverflowPolicy OverflowPolicy

	// ForegroundTrackID and BackgroundTrackID default to 1 and 2.
	ForegroundTrackID TrackID
	BackgroundTrackID TrackID

	// ParallelFilters runs the foreground and background chains of a frame concurrently.
	ParallelFilters bool

	// DropFailedComposites finishes requests whose images could not be composited
	// with their untouched destination buffer instead of ErrCompositeFailed.
	DropFailedComposites bool

	Logger golog.Logger
}

func (config CompositorConfig) withDefaults() CompositorConfig {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.ForegroundTrackID == 0 {
		config.ForegroundTrackID = ForegroundTrackID
	}
	if config.BackgroundTrackID == 0 {
		config.BackgroundTrackID = BackgroundTrackID
	}
	if config.Logger == nil {
		config.Logger = Logger
	}
	return config
}
