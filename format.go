package gocompositor

import (
	"fmt"

	"github.com/pkg/errors"
)

// PixelFormat identifies the memory layout of a frame buffer.
type PixelFormat uint32

// fourcc packs a four character code the way CoreVideo pixel format types are packed.
func fourcc(code string) PixelFormat {
	return PixelFormat(uint32(code[0])<<24 | uint32(code[1])<<16 | uint32(code[2])<<8 | uint32(code[3]))
}

// Known pixel formats. Only PixelFormat32BGRA can be composited.
var (
	PixelFormat32BGRA    = fourcc("BGRA")
	PixelFormat32RGBA    = fourcc("RGBA")
	PixelFormat420YpCbCr = fourcc("420v")
)

// String returns the four character code of the format.
func (pf PixelFormat) String() string {
	b := []byte{byte(pf >> 24), byte(pf >> 16), byte(pf >> 8), byte(pf)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(pf))
		}
	}
	return string(b)
}

// Color primaries a frame can declare in its attachments.
const (
	ColorPrimariesITUR709  = "ITU_R_709_2"
	ColorPrimariesEBU3213  = "EBU_3213"
	ColorPrimariesSMPTEC   = "SMPTE_C"
	ColorPrimariesP3D65    = "P3_D65"
	ColorPrimariesITUR2020 = "ITU_R_2020"
)

// Attachments are the color metadata a producer attaches to a frame buffer.
type Attachments struct {
	ColorPrimaries   string
	TransferFunction string
	YCbCrMatrix      string
	// ColorSpace, when set, is the exact color space the producer intends.
	ColorSpace *ColorSpace
}

// A FormatDescription describes the layout and color metadata of a frame buffer.
type FormatDescription struct {
	PixelFormat PixelFormat
	Width       int
	Height      int
	Extensions  Attachments
}

// NewFormatDescription derives a format description from the given buffer.
func NewFormatDescription(buf FrameBuffer) (FormatDescription, error) {
	if buf == nil {
		return FormatDescription{}, errors.New("no buffer to describe")
	}
	bounds := buf.Bounds()
	if bounds.Empty() {
		return FormatDescription{}, errors.Errorf("buffer has empty bounds %v", bounds)
	}
	return FormatDescription{
		PixelFormat: buf.PixelFormat(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Extensions:  buf.Attachments(),
	}, nil
}
