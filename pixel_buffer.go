package gocompositor

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// A FrameBuffer is an in place fillable rectangular pixel grid that composited
// frames are written into. Implementations that are also a sync.Locker are locked
// while being written.
type FrameBuffer interface {
	draw.Image
	PixelFormat() PixelFormat
	Attachments() Attachments
}

// A PixelBuffer is a premultiplied 32-bit BGRA FrameBuffer.
type PixelBuffer struct {
	mu sync.Mutex
	// Pix holds the pixels in B, G, R, A order.
	Pix    []uint8
	Stride int
	Rect   image.Rectangle

	attachments Attachments
}

// NewPixelBuffer returns a zeroed (transparent) buffer of the given size.
func NewPixelBuffer(width, height int) *PixelBuffer {
	return &PixelBuffer{
		Pix:    make([]uint8, 4*width*height),
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}
}

// Lock locks the buffer's memory for writing.
func (pb *PixelBuffer) Lock() { pb.mu.Lock() }

// Unlock unlocks the buffer's memory.
func (pb *PixelBuffer) Unlock() { pb.mu.Unlock() }

// PixelFormat is always PixelFormat32BGRA.
func (pb *PixelBuffer) PixelFormat() PixelFormat { return PixelFormat32BGRA }

// Attachments returns the color metadata attached to the buffer.
func (pb *PixelBuffer) Attachments() Attachments { return pb.attachments }

// SetAttachments replaces the color metadata attached to the buffer.
func (pb *PixelBuffer) SetAttachments(attachments Attachments) { pb.attachments = attachments }

func (pb *PixelBuffer) ColorModel() color.Model { return color.RGBAModel }

func (pb *PixelBuffer) Bounds() image.Rectangle { return pb.Rect }

// PixOffset returns the index of the first element of Pix that corresponds to the pixel at (x, y).
func (pb *PixelBuffer) PixOffset(x, y int) int {
	return (y-pb.Rect.Min.Y)*pb.Stride + (x-pb.Rect.Min.X)*4
}

func (pb *PixelBuffer) At(x, y int) color.Color {
	return pb.RGBAAt(x, y)
}

// RGBAAt returns the premultiplied color at (x, y).
func (pb *PixelBuffer) RGBAAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(pb.Rect)) {
		return color.RGBA{}
	}
	i := pb.PixOffset(x, y)
	s := pb.Pix[i : i+4 : i+4]
	return color.RGBA{R: s[2], G: s[1], B: s[0], A: s[3]}
}

func (pb *PixelBuffer) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(pb.Rect)) {
		return
	}
	c1 := color.RGBAModel.Convert(c).(color.RGBA)
	pb.SetRGBA(x, y, c1)
}

// SetRGBA sets the premultiplied color at (x, y).
func (pb *PixelBuffer) SetRGBA(x, y int, c color.RGBA) {
	if !(image.Point{x, y}.In(pb.Rect)) {
		return
	}
	i := pb.PixOffset(x, y)
	s := pb.Pix[i : i+4 : i+4]
	s[0], s[1], s[2], s[3] = c.B, c.G, c.R, c.A
}

// Fill sets every pixel of the buffer to c.
func (pb *PixelBuffer) Fill(c color.Color) {
	c1 := color.RGBAModel.Convert(c).(color.RGBA)
	for y := pb.Rect.Min.Y; y < pb.Rect.Max.Y; y++ {
		for x := pb.Rect.Min.X; x < pb.Rect.Max.X; x++ {
			pb.SetRGBA(x, y, c1)
		}
	}
}

// A RenderContext supplies the destination buffers composited frames are written into.
type RenderContext interface {
	NewPixelBuffer() (FrameBuffer, error)
}

// ErrPoolExhausted happens when a PixelBufferPool has handed out all the buffers it may.
var ErrPoolExhausted = errors.New("pixel buffer pool exhausted")

// A PixelBufferPool recycles equally sized PixelBuffers. It is a RenderContext.
type PixelBufferPool struct {
	width, height int
	attachments   Attachments
	maxBuffers    int64
	outstanding   atomic.Int64
	pool          sync.Pool
}

// NewPixelBufferPool returns a pool of width x height buffers carrying the given
// attachments. A positive maxBuffers caps how many buffers may be out of the pool at once.
func NewPixelBufferPool(width, height int, attachments Attachments, maxBuffers int) *PixelBufferPool {
	return &PixelBufferPool{
		width:       width,
		height:      height,
		attachments: attachments,
		maxBuffers:  int64(maxBuffers),
	}
}

// NewPixelBuffer takes a buffer from the pool.
func (p *PixelBufferPool) NewPixelBuffer() (FrameBuffer, error) {
	pb, err := p.Get()
	if err != nil {
		return nil, err
	}
	return pb, nil
}

// Get takes a buffer from the pool, allocating one if none is free.
func (p *PixelBufferPool) Get() (*PixelBuffer, error) {
	if n := p.outstanding.Add(1); p.maxBuffers > 0 && n > p.maxBuffers {
		p.outstanding.Add(-1)
		return nil, errors.Wrapf(ErrPoolExhausted, "%d buffers in use", p.maxBuffers)
	}
	pb, ok := p.pool.Get().(*PixelBuffer)
	if !ok {
		pb = NewPixelBuffer(p.width, p.height)
	}
	pb.SetAttachments(p.attachments)
	return pb, nil
}

// Put returns a buffer to the pool. Buffers of a different size are dropped.
func (p *PixelBufferPool) Put(pb *PixelBuffer) {
	if pb == nil {
		return
	}
	p.outstanding.Add(-1)
	if pb.Rect.Dx() != p.width || pb.Rect.Dy() != p.height {
		return
	}
	p.pool.Put(pb)
}

// Outstanding returns how many buffers are currently out of the pool.
func (p *PixelBufferPool) Outstanding() int {
	return int(p.outstanding.Load())
}
