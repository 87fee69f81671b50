package gocompositor

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// liveBackends counts render backends that have been allocated and not released.
var liveBackends atomic.Int64

// maxFreeCanvases bounds how many canvases of one size a backend keeps for reuse.
const maxFreeCanvases = 4

// A renderBackend holds the reusable state needed to draw composites into frame
// buffers. It is owned by a single goroutine.
type renderBackend struct {
	free     map[image.Point][]*image.RGBA
	released bool
}

func newRenderBackend() *renderBackend {
	liveBackends.Add(1)
	return &renderBackend{free: map[image.Point][]*image.RGBA{}}
}

// release drops all cached canvases. Calling it more than once has no effect.
func (b *renderBackend) release() {
	if b.released {
		return
	}
	b.released = true
	b.free = nil
	liveBackends.Add(-1)
}

// A frameScope tracks the canvases allocated while compositing one frame so they
// are returned to the backend once the frame is done, however it ends.
type frameScope struct {
	backend *renderBackend
	held    []*image.RGBA
}

func (b *renderBackend) beginFrame() *frameScope {
	return &frameScope{backend: b}
}

// newCanvas returns a transparent canvas covering r.
func (s *frameScope) newCanvas(r image.Rectangle) *image.RGBA {
	size := r.Size()
	var canvas *image.RGBA
	if free := s.backend.free[size]; len(free) > 0 {
		canvas = free[len(free)-1]
		s.backend.free[size] = free[:len(free)-1]
		clear(canvas.Pix)
		canvas.Rect = r
	} else {
		canvas = image.NewRGBA(r)
	}
	s.held = append(s.held, canvas)
	return canvas
}

func (s *frameScope) release() {
	b := s.backend
	for _, canvas := range s.held {
		if b.released {
			break
		}
		size := canvas.Rect.Size()
		if len(b.free[size]) < maxFreeCanvases {
			b.free[size] = append(b.free[size], canvas)
		}
	}
	s.held = nil
}

// draw writes the part of composite that overlaps dst into dst, converted into cs.
func (b *renderBackend) draw(composite *image.RGBA, dst FrameBuffer, cs *ColorSpace) {
	region := composite.Rect.Intersect(dst.Bounds())
	if region.Empty() {
		return
	}
	if locker, ok := dst.(sync.Locker); ok {
		locker.Lock()
		defer locker.Unlock()
	}

	pb, isPixelBuffer := dst.(*PixelBuffer)
	for y := region.Min.Y; y < region.Max.Y; y++ {
		i := composite.PixOffset(region.Min.X, y)
		for x := region.Min.X; x < region.Max.X; x, i = x+1, i+4 {
			s := composite.Pix[i : i+4 : i+4]
			c := convertPremultiplied(color.RGBA{R: s[0], G: s[1], B: s[2], A: s[3]}, cs)
			if isPixelBuffer {
				j := pb.PixOffset(x, y)
				d := pb.Pix[j : j+4 : j+4]
				d[0], d[1], d[2], d[3] = c.B, c.G, c.R, c.A
				continue
			}
			dst.Set(x, y, c)
		}
	}
}

// convertPremultiplied converts a premultiplied sRGB color into cs.
func convertPremultiplied(c color.RGBA, cs *ColorSpace) color.RGBA {
	if cs.IsIdentity() || c.A == 0 {
		return c
	}
	a := uint32(c.A)
	r, g, b := cs.Convert(unpremultiply(c.R, a), unpremultiply(c.G, a), unpremultiply(c.B, a))
	return color.RGBA{
		R: uint8((uint32(r)*a + 127) / 255),
		G: uint8((uint32(g)*a + 127) / 255),
		B: uint8((uint32(b)*a + 127) / 255),
		A: c.A,
	}
}

func unpremultiply(v uint8, a uint32) uint8 {
	if a == 255 {
		return v
	}
	out := (uint32(v)*255 + a/2) / a
	if out > 255 {
		return 255
	}
	return uint8(out)
}
