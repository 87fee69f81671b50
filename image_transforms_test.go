package gocompositor

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestAffineTransform(t *testing.T) {
	x, y := IdentityTransform.Apply(3, 4)
	test.That(t, x, test.ShouldEqual, 3.0)
	test.That(t, y, test.ShouldEqual, 4.0)

	// translate first, then scale
	x, y = Translation(1, 0).Concat(Scaling(2, 2)).Apply(1, 1)
	test.That(t, x, test.ShouldEqual, 4.0)
	test.That(t, y, test.ShouldEqual, 2.0)

	// scale first, then translate
	x, y = Scaling(2, 2).Concat(Translation(1, 0)).Apply(1, 1)
	test.That(t, x, test.ShouldEqual, 3.0)
	test.That(t, y, test.ShouldEqual, 2.0)

	rect := Scaling(0.5, 2).transformRect(image.Rect(2, 2, 6, 6))
	test.That(t, rect, test.ShouldResemble, image.Rect(1, 4, 3, 12))
}

func TestTransformImage(t *testing.T) {
	img := solidImage(image.Rect(0, 0, 4, 4), color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	t.Run("identity", func(t *testing.T) {
		out, err := transformImage(img, IdentityTransform)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out, test.ShouldEqual, img)
	})

	t.Run("singular", func(t *testing.T) {
		_, err := transformImage(img, Scaling(0, 1))
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("whole pixel translation", func(t *testing.T) {
		out, err := transformImage(img, Translation(3, -2))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Bounds(), test.ShouldResemble, image.Rect(3, -2, 7, 2))
		test.That(t, nrgbaAt(out, 3, -2), test.ShouldResemble, nrgbaAt(img, 0, 0))
		// the source keeps its position
		test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 4, 4))
	})

	t.Run("sub pixel translation", func(t *testing.T) {
		out, err := transformImage(img, Translation(0.5, 0))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Bounds(), test.ShouldResemble, image.Rect(0, 0, 5, 4))
		c := nrgbaAt(out, 2, 2)
		test.That(t, c.A, test.ShouldEqual, uint8(255))
	})
}

func TestGeometryFilters(t *testing.T) {
	img := solidImage(image.Rect(10, 10, 18, 18), color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	out, err := ApplyFilter(img, NewFilterSpec("scale", "scale", 0.5))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds(), test.ShouldResemble, image.Rect(10, 10, 14, 14))

	out, err = ApplyFilter(img, NewFilterSpec("scale", "scale", 0.5, "aspect", 2.0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds(), test.ShouldResemble, image.Rect(10, 10, 14, 18))

	_, err = ApplyFilter(img, NewFilterSpec("scale", "scale", 0.0))
	test.That(t, err, test.ShouldNotBeNil)

	out, err = ApplyFilter(img, NewFilterSpec("translate", "x", -10.0, "y", 5.0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds(), test.ShouldResemble, image.Rect(0, 15, 8, 23))

	out, err = ApplyFilter(img, NewFilterSpec("transform", "transform", []float64{1, 0, 0, 1, 2, 2}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds(), test.ShouldResemble, image.Rect(12, 12, 20, 20))

	out, err = ApplyFilter(img, NewFilterSpec("resize", "width", 4))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds(), test.ShouldResemble, image.Rect(10, 10, 14, 14))

	_, err = ApplyFilter(img, NewFilterSpec("resize"))
	test.That(t, err, test.ShouldNotBeNil)

	wide := solidImage(image.Rect(0, 0, 4, 2), color.NRGBA{R: 255, A: 255})
	out, err = ApplyFilter(wide, NewFilterSpec("rotate", "angle", 90.0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds(), test.ShouldResemble, image.Rect(1, -1, 3, 3))
}

func TestPixelFilters(t *testing.T) {
	img := solidImage(image.Rect(5, 5, 9, 9), color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	img.SetNRGBA(5, 5, color.NRGBA{B: 255, A: 255})

	for _, spec := range []FilterSpec{
		NewFilterSpec("brightness", "amount", 10.0),
		NewFilterSpec("contrast", "amount", -10.0),
		NewFilterSpec("saturation", "amount", 50.0),
		NewFilterSpec("gamma", "gamma", 1.5),
		NewFilterSpec("grayscale"),
		NewFilterSpec("invert"),
		NewFilterSpec("blur", "sigma", 1.0),
		NewFilterSpec("sharpen", "sigma", 1.0),
		NewFilterSpec("flip_horizontal"),
		NewFilterSpec("flip_vertical"),
		NewFilterSpec("sepia", "amount", 100.0),
		NewFilterSpec("hue", "shift", 45.0),
		NewFilterSpec("colorize", "hue", 120.0, "saturation", 50.0),
		NewFilterSpec("pixelate", "size", 2),
		NewFilterSpec("sigmoid", "factor", 5.0),
		NewFilterSpec("opacity", "alpha", 0.5),
	} {
		t.Run(spec.Name, func(t *testing.T) {
			out, err := ApplyFilter(img, spec)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, out.Bounds(), test.ShouldResemble, img.Bounds())
		})
	}

	out, err := ApplyFilter(img, NewFilterSpec("flip_horizontal"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nrgbaAt(out, 8, 5), test.ShouldResemble, color.NRGBA{B: 255, A: 255})

	out, err = ApplyFilter(img, NewFilterSpec("opacity", "alpha", 0.5))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nrgbaAt(out, 6, 6), test.ShouldResemble, color.NRGBA{R: 200, G: 100, B: 50, A: 128})

	for _, bad := range []FilterSpec{
		NewFilterSpec("brightness", "amount", 101.0),
		NewFilterSpec("gamma", "gamma", 0.0),
		NewFilterSpec("hue", "shift", 200.0),
		NewFilterSpec("pixelate", "size", 0),
		NewFilterSpec("sigmoid"),
		NewFilterSpec("opacity"),
	} {
		_, err := ApplyFilter(img, bad)
		test.That(t, err, test.ShouldNotBeNil)
	}
}
