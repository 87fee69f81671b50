// Package media feeds a compositor from live video readers.
package media

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edaniels/golog"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/edaniels/gocompositor"
)

// A Compositor accepts composition requests.
type Compositor interface {
	StartRequest(req gocompositor.CompositionRequest)
}

// FrameReleasePair associates a composited frame with a function returning it to
// the pump once the receiver is finished with it.
type FrameReleasePair struct {
	Frame   *gocompositor.PixelBuffer
	Release func()
}

// A PumpConfig describes where a Pump reads frames from and what it produces.
type PumpConfig struct {
	Foreground video.Reader
	Background video.Reader
	// Properties gives the size of composited frames. A positive FrameRate limits
	// how often frames are read.
	Properties  prop.Video
	Attachments gocompositor.Attachments
	// MaxFramesInFlight bounds how many frames may be queued, composited or held by
	// the receiver at once. Defaults to 4.
	MaxFramesInFlight int
	Logger            golog.Logger
}

// PumpStats counts what happened to the frames a Pump read.
type PumpStats struct {
	Composited int64
	Dropped    int64
	ReadErrors int64
}

type compositionResult struct {
	frame gocompositor.FrameBuffer
	err   error
}

// A Pump reads a foreground and a background frame at a time, submits them for
// composition and emits the composited frames in the order they were read.
type Pump struct {
	compositor Compositor
	config     PumpConfig
	pool       *gocompositor.PixelBufferPool
	logger     golog.Logger

	startOnce sync.Once
	inflight  chan chan compositionResult
	output    chan FrameReleasePair

	composited atomic.Int64
	dropped    atomic.Int64
	readErrors atomic.Int64

	shutdownCtx             context.Context
	shutdownCtxCancel       func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewPump returns a pump feeding the given compositor. It does nothing until started.
func NewPump(compositor Compositor, config PumpConfig) (*Pump, error) {
	if compositor == nil {
		return nil, errors.New("a compositor must be set")
	}
	if config.Foreground == nil || config.Background == nil {
		return nil, errors.New("both foreground and background readers must be set")
	}
	if config.Properties.Width <= 0 || config.Properties.Height <= 0 {
		return nil, errors.Errorf("invalid frame size %dx%d", config.Properties.Width, config.Properties.Height)
	}
	if config.MaxFramesInFlight <= 0 {
		config.MaxFramesInFlight = 4
	}
	logger := config.Logger
	if logger == nil {
		logger = gocompositor.Logger.Named("pump")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pump{
		compositor: compositor,
		config:     config,
		pool: gocompositor.NewPixelBufferPool(
			config.Properties.Width,
			config.Properties.Height,
			config.Attachments,
			config.MaxFramesInFlight,
		),
		logger:            logger,
		inflight:          make(chan chan compositionResult, config.MaxFramesInFlight),
		output:            make(chan FrameReleasePair),
		shutdownCtx:       ctx,
		shutdownCtxCancel: cancel,
	}, nil
}

// Start starts reading and compositing frames.
func (p *Pump) Start() {
	p.startOnce.Do(func() {
		p.activeBackgroundWorkers.Add(2)
		utils.ManagedGo(p.processInputFrames, p.activeBackgroundWorkers.Done)
		utils.ManagedGo(p.processOutputFrames, p.activeBackgroundWorkers.Done)
	})
}

// Frames returns the composited frames. It is closed once the pump stops.
func (p *Pump) Frames() <-chan FrameReleasePair {
	return p.output
}

// Stats returns a snapshot of the pump's counters.
func (p *Pump) Stats() PumpStats {
	return PumpStats{
		Composited: p.composited.Load(),
		Dropped:    p.dropped.Load(),
		ReadErrors: p.readErrors.Load(),
	}
}

// Stop stops reading frames and waits for the pump's goroutines to finish.
func (p *Pump) Stop() {
	p.shutdownCtxCancel()
	p.activeBackgroundWorkers.Wait()
}

// readFrames reads one frame from each reader concurrently.
func (p *Pump) readFrames() (fg, bg image.Image, release func(), err error) {
	var fgRelease, bgRelease func()
	var fgErr, bgErr error
	var wg sync.WaitGroup
	wg.Add(2)
	utils.PanicCapturingGo(func() {
		defer wg.Done()
		fg, fgRelease, fgErr = p.config.Foreground.Read()
	})
	utils.PanicCapturingGo(func() {
		defer wg.Done()
		bg, bgRelease, bgErr = p.config.Background.Read()
	})
	wg.Wait()

	release = func() {
		if fgRelease != nil {
			fgRelease()
		}
		if bgRelease != nil {
			bgRelease()
		}
	}
	if err := multierr.Combine(
		errors.Wrap(fgErr, "foreground"),
		errors.Wrap(bgErr, "background"),
	); err != nil {
		release()
		return nil, nil, nil, err
	}
	return fg, bg, release, nil
}

func (p *Pump) processInputFrames() {
	defer close(p.inflight)
	var tick <-chan time.Time
	if p.config.Properties.FrameRate > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / float64(p.config.Properties.FrameRate)))
		defer ticker.Stop()
		tick = ticker.C
	}
	errorCount := 0
	for {
		select {
		case <-p.shutdownCtx.Done():
			return
		default:
		}
		if tick != nil {
			select {
			case <-p.shutdownCtx.Done():
				return
			case <-tick:
			}
		}

		fg, bg, release, err := p.readFrames()
		if err != nil {
			p.readErrors.Add(1)
			errorCount++
			p.logger.Debugw("error reading frames", "error", err, "consecutive", errorCount)
			if !utils.SelectContextOrWait(p.shutdownCtx, sleepTimeFromErrorCount(errorCount)) {
				return
			}
			continue
		}
		errorCount = 0

		done := make(chan compositionResult, 1)
		req := gocompositor.NewCompositionRequest(p.pool, map[gocompositor.TrackID]image.Image{
			gocompositor.ForegroundTrackID: fg,
			gocompositor.BackgroundTrackID: bg,
		}, func(composed gocompositor.FrameBuffer, err error) {
			release()
			done <- compositionResult{composed, err}
		})
		select {
		case <-p.shutdownCtx.Done():
			release()
			return
		case p.inflight <- done:
		}
		p.compositor.StartRequest(req)
	}
}

func (p *Pump) processOutputFrames() {
	defer close(p.output)
	for done := range p.inflight {
		var result compositionResult
		select {
		case <-p.shutdownCtx.Done():
			return
		case result = <-done:
		}
		if result.err != nil {
			p.dropped.Add(1)
			p.logger.Debugw("dropped frame", "error", result.err)
			continue
		}
		frame, ok := result.frame.(*gocompositor.PixelBuffer)
		if !ok {
			p.dropped.Add(1)
			p.logger.Errorw("unexpected frame buffer type", "type", fmt.Sprintf("%T", result.frame))
			continue
		}
		p.composited.Add(1)
		var releaseOnce sync.Once
		pair := FrameReleasePair{Frame: frame, Release: func() {
			releaseOnce.Do(func() { p.pool.Put(frame) })
		}}
		select {
		case <-p.shutdownCtx.Done():
			pair.Release()
			return
		case p.output <- pair:
		}
	}
}
