// Package pixel resolves the pixel format and buffer layout of a captured
// frame.
//
// Some device and firmware combinations report an NV12 frame width that is
// not a multiple of 64 while the buffer behind it is padded to the next
// multiple of 64. For the known affected widths the reported width is
// rounded up so the computed byte length matches the buffer.
package pixel

// Format is the pixel format exposed to consumers.
type Format int

const (
	Unknown Format = iota
	BGRA32         // packed 8-bit B, G, R, A
	NV12           // 4:2:0, full-resolution Y plane then interleaved UV plane
)

func (f Format) String() string {
	switch f {
	case BGRA32:
		return "BGRA32"
	case NV12:
		return "NV12"
	default:
		return "Unknown"
	}
}

// BytesPerPixelX4 is the number of bytes per four pixels. NV12 uses 6 bytes
// per 4 pixels (4 luma + 2 chroma), BGRA32 16.
func (f Format) BytesPerPixelX4() int {
	switch f {
	case BGRA32:
		return 16
	case NV12:
		return 6
	default:
		return 0
	}
}

// NativeFormat is the platform bitmap format tag reported by the frame
// source.
type NativeFormat int

const (
	NativeUnknown NativeFormat = 0
	NativeRgba16  NativeFormat = 12
	NativeRgba8   NativeFormat = 30
	NativeGray16  NativeFormat = 57
	NativeGray8   NativeFormat = 62
	NativeBgra8   NativeFormat = 87
	NativeNv12    NativeFormat = 103
	NativeP010    NativeFormat = 104
	NativeYuy2    NativeFormat = 107
)

// MapPixelFormat maps a native format to the consumer format. Formats other
// than packed BGRA and planar NV12 map to Unknown.
func MapPixelFormat(n NativeFormat) Format {
	switch n {
	case NativeBgra8:
		return BGRA32
	case NativeNv12:
		return NV12
	default:
		return Unknown
	}
}

// UnsupportedByteLength is returned by ByteLength for formats whose layout
// is not known.
const UnsupportedByteLength = -1

// PaddingAlignment is the row alignment the padded NV12 buffers use.
const PaddingAlignment = 64

// DefaultPaddedWidths are the NV12 widths reported unpadded by affected
// devices.
var DefaultPaddedWidths = []int{500, 760, 1128, 1504, 1952}

// CorrectWidth returns the width the buffer is actually laid out with. Only
// NV12 widths listed in paddedWidths that are not already aligned are
// rounded up to the next multiple of 64; everything else is returned as-is.
func CorrectWidth(f Format, width int, paddedWidths []int) int {
	if f != NV12 || width%PaddingAlignment == 0 {
		return width
	}
	for _, w := range paddedWidths {
		if w == width {
			return ((width >> 6) + 1) << 6
		}
	}
	return width
}

// ByteLength returns the payload size for a frame of the given format and
// size: BGRA32 is width*height*4, NV12 width*height*6/4 with truncating
// division. Unknown formats return UnsupportedByteLength.
func ByteLength(f Format, width, height int) int {
	if f.BytesPerPixelX4() == 0 {
		return UnsupportedByteLength
	}
	return width * height * f.BytesPerPixelX4() / 4
}

// Layout is the corrected geometry of a frame's pixel payload.
type Layout struct {
	Format     Format
	Width      int
	Height     int
	ByteLength int
}

// Supported reports whether the payload can be copied.
func (l Layout) Supported() bool {
	return l.ByteLength != UnsupportedByteLength
}

// ResolveLayout maps the native format, applies the width correction and
// derives the byte length. Height is never corrected.
func ResolveLayout(n NativeFormat, width, height int, paddedWidths []int) Layout {
	f := MapPixelFormat(n)
	w := CorrectWidth(f, width, paddedWidths)
	return Layout{
		Format:     f,
		Width:      w,
		Height:     height,
		ByteLength: ByteLength(f, w, height),
	}
}
