package gocompositor

import (
	"image"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"
)

type rendererState int

const (
	rendererUnprepared rendererState = iota
	rendererPrepared
)

func (s rendererState) String() string {
	if s == rendererPrepared {
		return "prepared"
	}
	return "unprepared"
}

// A PictureInPictureRenderer filters a foreground and a background image and draws
// the foreground over the background into a frame buffer. It must be prepared with
// the format of the buffers it will draw into before rendering, and is not safe for
// concurrent use.
type PictureInPictureRenderer struct {
	state            rendererState
	backend          *renderBackend
	outputColorSpace *ColorSpace
	parallelFilters  bool
	logger           golog.Logger
}

// NewPictureInPictureRenderer returns an unprepared renderer. When parallelFilters
// is set, the two filter chains of a frame run concurrently.
func NewPictureInPictureRenderer(parallelFilters bool, logger golog.Logger) *PictureInPictureRenderer {
	if logger == nil {
		logger = Logger
	}
	return &PictureInPictureRenderer{parallelFilters: parallelFilters, logger: logger}
}

// IsPrepared reports whether the renderer can render.
func (r *PictureInPictureRenderer) IsPrepared() bool {
	return r.state == rendererPrepared
}

// OutputColorSpace returns the color space frames are written in, or nil when unprepared.
func (r *PictureInPictureRenderer) OutputColorSpace() *ColorSpace {
	return r.outputColorSpace
}

// Prepare discards any previous state and readies the renderer for buffers
// described by desc. It panics if desc is not a 32-bit BGRA format.
func (r *PictureInPictureRenderer) Prepare(desc FormatDescription) {
	r.Reset()
	r.outputColorSpace = ResolveColorSpace(desc)
	r.backend = newRenderBackend()
	r.state = rendererPrepared
	r.logger.Debugw("prepared renderer",
		"width", desc.Width, "height", desc.Height, "color_space", r.outputColorSpace.Name())
}

// Reset releases the renderer's resources. It is safe to call at any time.
func (r *PictureInPictureRenderer) Reset() {
	if r.backend != nil {
		r.backend.release()
		r.backend = nil
	}
	r.outputColorSpace = nil
	r.state = rendererUnprepared
}

// Render filters bg with bgChain and fg with fgChain, composites fg over bg and
// writes the result into dst. When nothing can be composited, dst is left untouched
// and an error wrapping ErrCompositeFailed is returned. Rendering an unprepared
// renderer panics.
func (r *PictureInPictureRenderer) Render(
	bg image.Image,
	bgChain FilterChain,
	fg image.Image,
	fgChain FilterChain,
	dst FrameBuffer,
) error {
	if r.state != rendererPrepared || r.backend == nil {
		panic(errors.Errorf("invalid renderer state %s", r.state))
	}
	scope := r.backend.beginFrame()
	defer scope.release()

	var filteredBg, filteredFg image.Image
	applyBg := func() error {
		filteredBg = ApplyFilterChain(bg, bgChain, r.logger)
		return nil
	}
	applyFg := func() error {
		filteredFg = ApplyFilterChain(fg, fgChain, r.logger)
		return nil
	}
	if err := runParallel(r.parallelFilters && len(bgChain) > 0 && len(fgChain) > 0, applyBg, applyFg); err != nil {
		return err
	}

	composite, err := sourceOver(scope, filteredFg, filteredBg)
	if err != nil {
		r.logger.Warnw("couldn't compose images", "error", err)
		return err
	}
	r.backend.draw(composite, dst, r.outputColorSpace)
	return nil
}

// sourceOver draws top over bottom on a canvas covering both.
func sourceOver(scope *frameScope, top, bottom image.Image) (*image.RGBA, error) {
	if top == nil || bottom == nil {
		return nil, errors.Wrap(ErrCompositeFailed, "missing image")
	}
	extent := top.Bounds().Union(bottom.Bounds())
	if extent.Empty() {
		return nil, errors.Wrap(ErrCompositeFailed, "images are empty")
	}
	canvas := scope.newCanvas(extent)
	xdraw.Draw(canvas, bottom.Bounds(), bottom, bottom.Bounds().Min, xdraw.Src)
	xdraw.Draw(canvas, top.Bounds(), top, top.Bounds().Min, xdraw.Over)
	return canvas, nil
}
