package gocompositor

import (
	"image"
	"image/color"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func preparedRenderer(t *testing.T, parallel bool, dst FrameBuffer) *PictureInPictureRenderer {
	t.Helper()
	r := NewPictureInPictureRenderer(parallel, golog.NewTestLogger(t))
	desc, err := NewFormatDescription(dst)
	test.That(t, err, test.ShouldBeNil)
	r.Prepare(desc)
	t.Cleanup(r.Reset)
	return r
}

func TestRendererSourceOver(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		dst := NewPixelBuffer(8, 8)
		r := preparedRenderer(t, parallel, dst)
		test.That(t, r.IsPrepared(), test.ShouldBeTrue)
		test.That(t, r.OutputColorSpace(), test.ShouldEqual, ColorSpaceDeviceRGB)

		bg := solidImage(image.Rect(0, 0, 8, 8), color.NRGBA{R: 255, A: 255})
		fg := solidImage(image.Rect(0, 0, 8, 8), color.NRGBA{B: 255, A: 128})
		err := r.Render(bg, nil, fg, nil, dst)
		test.That(t, err, test.ShouldBeNil)

		c := dst.RGBAAt(3, 3)
		test.That(t, int(c.R), test.ShouldBeBetween, 125, 129)
		test.That(t, c.G, test.ShouldEqual, uint8(0))
		test.That(t, int(c.B), test.ShouldBeBetween, 126, 130)
		test.That(t, c.A, test.ShouldEqual, uint8(255))
	}
}

func TestRendererAppliesChains(t *testing.T) {
	dst := NewPixelBuffer(8, 8)
	r := preparedRenderer(t, true, dst)

	bg := solidImage(image.Rect(0, 0, 8, 8), color.NRGBA{R: 255, A: 255})
	fg := solidImage(image.Rect(0, 0, 8, 8), color.NRGBA{G: 255, A: 255})
	err := r.Render(
		bg, FilterChain{NewFilterSpec("invert")},
		fg, FilterChain{NewFilterSpec("scale", "scale", 0.5), NewFilterSpec("translate", "x", 4.0, "y", 4.0)},
		dst,
	)
	test.That(t, err, test.ShouldBeNil)

	// inverted background outside the foreground
	test.That(t, dst.RGBAAt(1, 1), test.ShouldResemble, color.RGBA{G: 255, B: 255, A: 255})
	// foreground in the bottom right quadrant
	test.That(t, dst.RGBAAt(6, 6), test.ShouldResemble, color.RGBA{G: 255, A: 255})
	// the sources are untouched
	test.That(t, nrgbaAt(bg, 1, 1), test.ShouldResemble, color.NRGBA{R: 255, A: 255})
}

func TestRendererDisplayP3(t *testing.T) {
	dst := NewPixelBuffer(2, 2)
	dst.SetAttachments(Attachments{ColorPrimaries: ColorPrimariesP3D65})
	r := preparedRenderer(t, false, dst)
	test.That(t, r.OutputColorSpace(), test.ShouldEqual, ColorSpaceDisplayP3)

	red := solidImage(image.Rect(0, 0, 2, 2), color.NRGBA{R: 255, A: 255})
	test.That(t, r.Render(red, nil, red, nil, dst), test.ShouldBeNil)
	c := dst.RGBAAt(0, 0)
	test.That(t, c.R, test.ShouldBeLessThan, 250)
	test.That(t, c.G, test.ShouldBeGreaterThan, 20)
	test.That(t, c.A, test.ShouldEqual, uint8(255))
}

func TestRendererCompositeFailed(t *testing.T) {
	dst := NewPixelBuffer(4, 4)
	sentinel := color.RGBA{R: 1, G: 2, B: 3, A: 4}
	dst.Fill(sentinel)
	r := preparedRenderer(t, false, dst)

	empty := image.NewNRGBA(image.Rectangle{})
	err := r.Render(empty, nil, empty, nil, dst)
	test.That(t, errors.Is(err, ErrCompositeFailed), test.ShouldBeTrue)
	test.That(t, dst.RGBAAt(2, 2), test.ShouldResemble, sentinel)

	// the renderer stays usable
	bg := solidImage(image.Rect(0, 0, 4, 4), color.NRGBA{R: 255, A: 255})
	test.That(t, r.Render(bg, nil, empty, nil, dst), test.ShouldBeNil)
	test.That(t, dst.RGBAAt(2, 2), test.ShouldResemble, color.RGBA{R: 255, A: 255})
}

func TestRendererUnpreparedPanics(t *testing.T) {
	r := NewPictureInPictureRenderer(false, golog.NewTestLogger(t))
	test.That(t, r.IsPrepared(), test.ShouldBeFalse)
	test.That(t, r.OutputColorSpace(), test.ShouldBeNil)

	dst := NewPixelBuffer(2, 2)
	img := solidImage(image.Rect(0, 0, 2, 2), color.NRGBA{A: 255})
	test.That(t, func() { r.Render(img, nil, img, nil, dst) }, test.ShouldPanic)

	desc, err := NewFormatDescription(dst)
	test.That(t, err, test.ShouldBeNil)
	r.Prepare(desc)
	r.Reset()
	test.That(t, func() { r.Render(img, nil, img, nil, dst) }, test.ShouldPanic)
}

func TestRendererReleasesBackends(t *testing.T) {
	before := liveBackends.Load()
	dst := NewPixelBuffer(4, 4)
	desc, err := NewFormatDescription(dst)
	test.That(t, err, test.ShouldBeNil)
	img := solidImage(image.Rect(0, 0, 4, 4), color.NRGBA{R: 9, A: 255})

	r := NewPictureInPictureRenderer(false, golog.NewTestLogger(t))
	for i := 0; i < 50; i++ {
		r.Prepare(desc)
		test.That(t, liveBackends.Load(), test.ShouldEqual, before+1)
		for j := 0; j < 5; j++ {
			test.That(t, r.Render(img, nil, img, FilterChain{NewFilterSpec("invert")}, dst), test.ShouldBeNil)
		}
	}
	r.Reset()
	r.Reset()
	test.That(t, liveBackends.Load(), test.ShouldEqual, before)
}

func TestFrameScopeReusesCanvases(t *testing.T) {
	backend := newRenderBackend()
	defer backend.release()

	scope := backend.beginFrame()
	first := scope.newCanvas(image.Rect(0, 0, 4, 4))
	first.Pix[0] = 200
	scope.release()

	scope = backend.beginFrame()
	second := scope.newCanvas(image.Rect(2, 2, 6, 6))
	test.That(t, second, test.ShouldEqual, first)
	test.That(t, second.Rect, test.ShouldResemble, image.Rect(2, 2, 6, 6))
	test.That(t, second.Pix[0], test.ShouldEqual, uint8(0))
	third := scope.newCanvas(image.Rect(0, 0, 4, 4))
	test.That(t, third, test.ShouldNotEqual, first)
	scope.release()

	backend.release()
	scope = backend.beginFrame()
	scope.newCanvas(image.Rect(0, 0, 1, 1))
	scope.release()
}
