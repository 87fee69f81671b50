package gocompositor

import (
	"math"
)

// A ColorSpace is an output RGB color space. Images are composited in sRGB and
// converted into the output color space when they are written to a destination.
type ColorSpace struct {
	name string
	// toOutput maps linear sRGB to linear output primaries, row major.
	toOutput [9]float32
	identity bool
	encode   *[4096]uint8
}

// Name returns the name of the color space.
func (cs *ColorSpace) Name() string {
	if cs == nil {
		return ""
	}
	return cs.name
}

// IsIdentity reports whether writing into this color space leaves sRGB values untouched.
func (cs *ColorSpace) IsIdentity() bool {
	return cs == nil || cs.identity
}

func (cs *ColorSpace) String() string {
	return cs.Name()
}

// A TransferFunction encodes linear light into output values.
type TransferFunction int

// Transfer functions supported by NewColorSpace.
const (
	TransferSRGB TransferFunction = iota
	TransferITUR709
)

// Standard color spaces.
var (
	ColorSpaceDeviceRGB = &ColorSpace{name: "DeviceRGB", identity: true}
	ColorSpaceSRGB      = &ColorSpace{name: "sRGB", identity: true}
	ColorSpaceDisplayP3 = NewColorSpace("DisplayP3", [9]float32{
		0.8225, 0.1774, 0.0000,
		0.0332, 0.9669, 0.0000,
		0.0171, 0.0724, 0.9108,
	}, TransferSRGB)
	ColorSpaceITUR2020 = NewColorSpace("ITUR_2020", [9]float32{
		0.6274, 0.3293, 0.0433,
		0.0691, 0.9195, 0.0114,
		0.0164, 0.0880, 0.8956,
	}, TransferITUR709)
)

// NewColorSpace returns a color space reached from linear sRGB by the given matrix
// and encoded with the given transfer function.
func NewColorSpace(name string, fromLinearSRGB [9]float32, transfer TransferFunction) *ColorSpace {
	var encode [4096]uint8
	for i := range encode {
		linear := float64(i) / 4095.0
		var v float64
		switch transfer {
		case TransferITUR709:
			if linear < 0.018 {
				v = 4.5 * linear
			} else {
				v = 1.099*math.Pow(linear, 0.45) - 0.099
			}
		default:
			if linear <= 0.0031308 {
				v = linear * 12.92
			} else {
				v = 1.055*math.Pow(linear, 1.0/2.4) - 0.055
			}
		}
		encode[i] = clampUint8(v*255.0 + 0.5)
	}
	return &ColorSpace{name: name, toOutput: fromLinearSRGB, encode: &encode}
}

// sRGBToLinearLUT decodes sRGB bytes into linear light.
var sRGBToLinearLUT [256]float32

func init() {
	for i := 0; i < 256; i++ {
		s := float64(i) / 255.0
		if s <= 0.04045 {
			sRGBToLinearLUT[i] = float32(s / 12.92)
		} else {
			sRGBToLinearLUT[i] = float32(math.Pow((s+0.055)/1.055, 2.4))
		}
	}
}

// Convert maps a non-premultiplied sRGB color into this color space.
func (cs *ColorSpace) Convert(r, g, b uint8) (uint8, uint8, uint8) {
	if cs.IsIdentity() {
		return r, g, b
	}
	lr, lg, lb := sRGBToLinearLUT[r], sRGBToLinearLUT[g], sRGBToLinearLUT[b]
	m := &cs.toOutput
	return cs.encodeLinear(m[0]*lr + m[1]*lg + m[2]*lb),
		cs.encodeLinear(m[3]*lr + m[4]*lg + m[5]*lb),
		cs.encodeLinear(m[6]*lr + m[7]*lg + m[8]*lb)
}

func (cs *ColorSpace) encodeLinear(v float32) uint8 {
	if v <= 0 {
		return cs.encode[0]
	}
	if v >= 1 {
		return cs.encode[4095]
	}
	return cs.encode[int(v*4095+0.5)]
}

func clampUint8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ResolveColorSpace returns the color space frames described by desc should be
// written in. An embedded color space is used as is; otherwise wide gamut primaries
// select their standard color space and everything else is DeviceRGB.
//
// Only PixelFormat32BGRA is supported; any other format is a programming error
// and panics.
func ResolveColorSpace(desc FormatDescription) *ColorSpace {
	if desc.PixelFormat != PixelFormat32BGRA {
		panic(newUnsupportedPixelFormatError(desc.PixelFormat))
	}
	if desc.Extensions.ColorSpace != nil {
		return desc.Extensions.ColorSpace
	}
	switch desc.Extensions.ColorPrimaries {
	case ColorPrimariesP3D65:
		return ColorSpaceDisplayP3
	case ColorPrimariesITUR2020:
		return ColorSpaceITUR2020
	default:
		return ColorSpaceDeviceRGB
	}
}
