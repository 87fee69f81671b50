package gocompositor

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

func init() {
	RegisterFilter("opacity", pixelFilter(opacity))
	RegisterFilter("brightness", pixelFilter(func(img image.Image, params FilterParams) (*image.NRGBA, error) {
		amount, err := percentage(params, "amount", -100, 100)
		if err != nil {
			return nil, err
		}
		return imaging.AdjustBrightness(img, amount), nil
	}))
	RegisterFilter("contrast", pixelFilter(func(img image.Image, params FilterParams) (*image.NRGBA, error) {
		amount, err := percentage(params, "amount", -100, 100)
		if err != nil {
			return nil, err
		}
		return imaging.AdjustContrast(img, amount), nil
	}))
	RegisterFilter("saturation", pixelFilter(func(img image.Image, params FilterParams) (*image.NRGBA, error) {
		amount, err := percentage(params, "amount", -100, 500)
		if err != nil {
			return nil, err
		}
		return imaging.AdjustSaturation(img, amount), nil
	}))
	RegisterFilter("gamma", pixelFilter(func(img image.Image, params FilterParams) (*image.NRGBA, error) {
		gamma, err := params.RequiredFloat("gamma")
		if err != nil {
			return nil, err
		}
		if gamma <= 0 {
			return nil, errors.Errorf("gamma must be positive, got %v", gamma)
		}
		return imaging.AdjustGamma(img, gamma), nil
	}))
	RegisterFilter("grayscale", pixelFilter(func(img image.Image, _ FilterParams) (*image.NRGBA, error) {
		return imaging.Grayscale(img), nil
	}))
	RegisterFilter("invert", pixelFilter(func(img image.Image, _ FilterParams) (*image.NRGBA, error) {
		return imaging.Invert(img), nil
	}))
	RegisterFilter("blur", pixelFilter(func(img image.Image, params FilterParams) (*image.NRGBA, error) {
		sigma, err := sigmaParam(params)
		if err != nil {
			return nil, err
		}
		return imaging.Blur(img, sigma), nil
	}))
	RegisterFilter("sharpen", pixelFilter(func(img image.Image, params FilterParams) (*image.NRGBA, error) {
		sigma, err := sigmaParam(params)
		if err != nil {
			return nil, err
		}
		return imaging.Sharpen(img, sigma), nil
	}))
	RegisterFilter("flip_horizontal", pixelFilter(func(img image.Image, _ FilterParams) (*image.NRGBA, error) {
		return imaging.FlipH(img), nil
	}))
	RegisterFilter("flip_vertical", pixelFilter(func(img image.Image, _ FilterParams) (*image.NRGBA, error) {
		return imaging.FlipV(img), nil
	}))
	RegisterFilter("rotate", rotate)

	RegisterFilter("sepia", giftFilter(func(params FilterParams) (gift.Filter, error) {
		amount, err := percentage(params, "amount", 0, 100)
		if err != nil {
			return nil, err
		}
		return gift.Sepia(float32(amount)), nil
	}))
	RegisterFilter("hue", giftFilter(func(params FilterParams) (gift.Filter, error) {
		shift, err := percentage(params, "shift", -180, 180)
		if err != nil {
			return nil, err
		}
		return gift.Hue(float32(shift)), nil
	}))
	RegisterFilter("colorize", giftFilter(func(params FilterParams) (gift.Filter, error) {
		hue, err := percentage(params, "hue", 0, 360)
		if err != nil {
			return nil, err
		}
		saturation, err := percentage(params, "saturation", 0, 100)
		if err != nil {
			return nil, err
		}
		amount, err := params.Float("amount", 100)
		if err != nil {
			return nil, err
		}
		return gift.Colorize(float32(hue), float32(saturation), float32(amount)), nil
	}))
	RegisterFilter("pixelate", giftFilter(func(params FilterParams) (gift.Filter, error) {
		size, err := params.Int("size", 0)
		if err != nil {
			return nil, err
		}
		if size < 1 {
			return nil, errors.Errorf("size must be at least 1, got %d", size)
		}
		return gift.Pixelate(size), nil
	}))
	RegisterFilter("sigmoid", giftFilter(func(params FilterParams) (gift.Filter, error) {
		midpoint, err := params.Float("midpoint", 0.5)
		if err != nil {
			return nil, err
		}
		factor, err := params.RequiredFloat("factor")
		if err != nil {
			return nil, err
		}
		return gift.Sigmoid(float32(midpoint), float32(factor)), nil
	}))

	RegisterFilter("resize", resizeFilter)
	RegisterFilter("scale", scale)
	RegisterFilter("translate", translate)
	RegisterFilter("transform", func(img image.Image, params FilterParams) (image.Image, error) {
		t, err := params.Transform("transform")
		if err != nil {
			return nil, err
		}
		return transformImage(img, t)
	})
}

// MaxFilterDimension bounds the width and height of any image a geometry filter produces.
const MaxFilterDimension = 1 << 14

const (
	maxSigma      = 256
	maxCoordinate = 1 << 24
)

func checkDimensions(w, h float64) error {
	if w > MaxFilterDimension || h > MaxFilterDimension {
		return errors.Errorf("output of %.0fx%.0f exceeds %dx%d", w, h, MaxFilterDimension, MaxFilterDimension)
	}
	return nil
}

func sigmaParam(params FilterParams) (float64, error) {
	sigma, err := positive(params, "sigma")
	if err != nil {
		return 0, err
	}
	if sigma > maxSigma {
		return 0, errors.Errorf("sigma must be at most %d, got %v", maxSigma, sigma)
	}
	return sigma, nil
}

func percentage(params FilterParams, key string, lo, hi float64) (float64, error) {
	v, err := params.RequiredFloat(key)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi || math.IsNaN(v) {
		return 0, errors.Errorf("parameter %q must be within [%v, %v], got %v", key, lo, hi, v)
	}
	return v, nil
}

func positive(params FilterParams, key string) (float64, error) {
	v, err := params.RequiredFloat(key)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, errors.Errorf("parameter %q must be positive, got %v", key, v)
	}
	return v, nil
}

// pixelFilter adapts filters that produce an image anchored at (0, 0) so that the
// output keeps the input's position.
func pixelFilter(f func(img image.Image, params FilterParams) (*image.NRGBA, error)) FilterFunc {
	return func(img image.Image, params FilterParams) (image.Image, error) {
		out, err := f(img, params)
		if err != nil {
			return nil, err
		}
		return moveTo(out, img.Bounds().Min), nil
	}
}

func giftFilter(build func(params FilterParams) (gift.Filter, error)) FilterFunc {
	return func(img image.Image, params FilterParams) (image.Image, error) {
		f, err := build(params)
		if err != nil {
			return nil, err
		}
		g := gift.New(f)
		dst := image.NewNRGBA(g.Bounds(img.Bounds()))
		g.Draw(dst, img)
		return moveTo(dst, img.Bounds().Min), nil
	}
}

// moveTo repositions img so its top left corner is at origin.
func moveTo(img image.Image, origin image.Point) image.Image {
	switch typed := img.(type) {
	case *image.NRGBA:
		typed.Rect = typed.Rect.Sub(typed.Rect.Min).Add(origin)
		return typed
	case *image.RGBA:
		typed.Rect = typed.Rect.Sub(typed.Rect.Min).Add(origin)
		return typed
	default:
		if img.Bounds().Min == origin {
			return img
		}
		return moveTo(imaging.Clone(img), origin)
	}
}

func opacity(img image.Image, params FilterParams) (*image.NRGBA, error) {
	alpha, err := params.RequiredFloat("alpha")
	if err != nil {
		return nil, err
	}
	if alpha < 0 || alpha > 1 || math.IsNaN(alpha) {
		return nil, errors.Errorf("alpha must be within [0, 1], got %v", alpha)
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		c.A = uint8(float64(c.A)*alpha + 0.5)
		return c
	}), nil
}

// rotate rotates counter-clockwise by "angle" degrees around the image center,
// growing the bounds to fit.
func rotate(img image.Image, params FilterParams) (image.Image, error) {
	angle, err := params.RequiredFloat("angle")
	if err != nil {
		return nil, err
	}
	bg, err := params.Color("background", color.Transparent)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	sin, cos := math.Sincos(angle * math.Pi / 180)
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	if err := checkDimensions(
		math.Abs(w*cos)+math.Abs(h*sin),
		math.Abs(w*sin)+math.Abs(h*cos),
	); err != nil {
		return nil, err
	}
	out := imaging.Rotate(img, angle, bg)
	center := bounds.Min.Add(bounds.Size().Div(2))
	return moveTo(out, center.Sub(out.Bounds().Size().Div(2))), nil
}

func resizeFilter(img image.Image, params FilterParams) (image.Image, error) {
	width, err := params.Int("width", 0)
	if err != nil {
		return nil, err
	}
	height, err := params.Int("height", 0)
	if err != nil {
		return nil, err
	}
	if width < 0 || height < 0 || (width == 0 && height == 0) {
		return nil, errors.Errorf("invalid size %dx%d", width, height)
	}
	src := img.Bounds()
	outW, outH := float64(width), float64(height)
	switch {
	case width == 0:
		outW = outH * float64(src.Dx()) / float64(src.Dy())
	case height == 0:
		outH = outW * float64(src.Dy()) / float64(src.Dx())
	}
	if err := checkDimensions(outW, outH); err != nil {
		return nil, err
	}
	out := resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
	return moveTo(out, img.Bounds().Min), nil
}

// scale scales by "scale" horizontally and "scale" * "aspect" vertically, keeping
// the top left corner in place.
func scale(img image.Image, params FilterParams) (image.Image, error) {
	s, err := positive(params, "scale")
	if err != nil {
		return nil, err
	}
	aspect, err := params.Float("aspect", 1)
	if err != nil {
		return nil, err
	}
	if aspect <= 0 {
		return nil, errors.Errorf("aspect must be positive, got %v", aspect)
	}
	origin := img.Bounds().Min
	t := Translation(-float64(origin.X), -float64(origin.Y)).
		Concat(Scaling(s, s*aspect)).
		Concat(Translation(float64(origin.X), float64(origin.Y)))
	return transformImage(img, t)
}

func translate(img image.Image, params FilterParams) (image.Image, error) {
	x, err := params.Float("x", 0)
	if err != nil {
		return nil, err
	}
	y, err := params.Float("y", 0)
	if err != nil {
		return nil, err
	}
	return transformImage(img, Translation(x, y))
}

// An AffineTransform maps (x, y) to (A*x + C*y + TX, B*x + D*y + TY).
type AffineTransform struct {
	A, B, C, D, TX, TY float64
}

// IdentityTransform leaves points where they are.
var IdentityTransform = AffineTransform{A: 1, D: 1}

// Translation returns a transform moving points by (tx, ty).
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// Scaling returns a transform scaling points by (sx, sy) around the origin.
func Scaling(sx, sy float64) AffineTransform {
	return AffineTransform{A: sx, D: sy}
}

// Concat returns the transform that applies t and then next.
func (t AffineTransform) Concat(next AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*next.A + t.B*next.C,
		B:  t.A*next.B + t.B*next.D,
		C:  t.C*next.A + t.D*next.C,
		D:  t.C*next.B + t.D*next.D,
		TX: t.TX*next.A + t.TY*next.C + next.TX,
		TY: t.TX*next.B + t.TY*next.D + next.TY,
	}
}

// Apply maps a point through the transform.
func (t AffineTransform) Apply(x, y float64) (float64, float64) {
	return t.A*x + t.C*y + t.TX, t.B*x + t.D*y + t.TY
}

func (t AffineTransform) determinant() float64 {
	return t.A*t.D - t.B*t.C
}

func (t AffineTransform) aff3() f64.Aff3 {
	return f64.Aff3{t.A, t.C, t.TX, t.B, t.D, t.TY}
}

// transformRect returns the smallest integer rectangle containing r transformed by t.
func (t AffineTransform) transformRect(r image.Rectangle) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range [4][2]float64{
		{float64(r.Min.X), float64(r.Min.Y)},
		{float64(r.Max.X), float64(r.Min.Y)},
		{float64(r.Min.X), float64(r.Max.Y)},
		{float64(r.Max.X), float64(r.Max.Y)},
	} {
		x, y := t.Apply(p[0], p[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return image.Rect(
		int(math.Floor(minX+1e-9)), int(math.Floor(minY+1e-9)),
		int(math.Ceil(maxX-1e-9)), int(math.Ceil(maxY-1e-9)),
	)
}

func isIntegral(f float64) bool {
	return f == math.Trunc(f)
}

func (t AffineTransform) finite() bool {
	for _, v := range [6]float64{t.A, t.B, t.C, t.D, t.TX, t.TY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// transformImage resamples img through t. Whole pixel translations only move the bounds.
func transformImage(img image.Image, t AffineTransform) (image.Image, error) {
	if !t.finite() {
		return nil, errors.Errorf("transform %+v is not finite", t)
	}
	if math.Abs(t.determinant()) < 1e-9 {
		return nil, errors.New("transform is not invertible")
	}
	if t == IdentityTransform {
		return img, nil
	}
	src := img.Bounds()
	w, h := float64(src.Dx()), float64(src.Dy())
	if err := checkDimensions(math.Abs(t.A)*w+math.Abs(t.C)*h, math.Abs(t.B)*w+math.Abs(t.D)*h); err != nil {
		return nil, err
	}
	if x, y := t.Apply(float64(src.Min.X), float64(src.Min.Y)); math.Abs(x) > maxCoordinate || math.Abs(y) > maxCoordinate {
		return nil, errors.Errorf("transform moves %v out of range", src)
	}
	if t.A == 1 && t.B == 0 && t.C == 0 && t.D == 1 && isIntegral(t.TX) && isIntegral(t.TY) {
		return moveTo(imaging.Clone(img), src.Min.Add(image.Pt(int(t.TX), int(t.TY)))), nil
	}
	dstBounds := t.transformRect(src)
	if dstBounds.Empty() {
		return nil, errors.Errorf("transform collapses %v", src)
	}
	dst := image.NewRGBA(dstBounds)
	xdraw.BiLinear.Transform(dst, t.aff3(), img, src, xdraw.Src, nil)
	return dst, nil
}
