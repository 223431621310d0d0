package sample

import (
	"errors"
	"math"

	"github.com/banshee-data/camstream/internal/camera/intrinsics"
	"github.com/banshee-data/camstream/internal/camera/metadata"
	"github.com/banshee-data/camstream/internal/camera/pixel"
	"github.com/banshee-data/camstream/internal/camera/transform"
)

type fakeCS string

func (c fakeCS) Name() string { return string(c) }

type anchorKey struct{ from, to string }

type fakeAnchors map[anchorKey]transform.Transform

func (a fakeAnchors) TransformBetween(from, to CoordinateSystem) (transform.Transform, bool) {
	m, ok := a[anchorKey{from.Name(), to.Name()}]
	return m, ok
}

type fakeBuffer struct {
	format        pixel.NativeFormat
	width, height int
	data          []byte
	released      int
	releaseErr    error
}

func (b *fakeBuffer) NativeFormat() pixel.NativeFormat { return b.format }
func (b *fakeBuffer) Width() int                       { return b.width }
func (b *fakeBuffer) Height() int                      { return b.height }

func (b *fakeBuffer) CopyTo(dst []byte) (int, error) {
	if b.released > 0 {
		return 0, errors.New("buffer released")
	}
	return copy(dst, b.data), nil
}

func (b *fakeBuffer) Release() error {
	b.released++
	return b.releaseErr
}

type fakeRef struct {
	buf        *fakeBuffer
	props      map[metadata.Key]any
	released   int
	releaseErr error
}

func (r *fakeRef) PixelBuffer() PixelBuffer {
	if r.buf == nil {
		return nil
	}
	return r.buf
}

func (r *fakeRef) Property(key metadata.Key) (any, bool) {
	v, ok := r.props[key]
	return v, ok
}

func (r *fakeRef) Release() error {
	r.released++
	return r.releaseErr
}

// fakeDirectRef adds the accessors Gen2 devices expose.
type fakeDirectRef struct {
	fakeRef
	cs        CoordinateSystem
	native    intrinsics.Native
	hasNative bool
}

func (r *fakeDirectRef) CoordinateSystem() (CoordinateSystem, bool) {
	return r.cs, r.cs != nil
}

func (r *fakeDirectRef) CameraIntrinsics() (intrinsics.Native, bool) {
	return r.native, r.hasNative
}

func newBuffer(format pixel.NativeFormat, width, height int) *fakeBuffer {
	f := pixel.MapPixelFormat(format)
	w := pixel.CorrectWidth(f, width, pixel.DefaultPaddedWidths)
	n := pixel.ByteLength(f, w, height)
	if n < 0 {
		n = width * height * 2
	}
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return &fakeBuffer{format: format, width: width, height: height, data: data}
}

// rowVectorTranslation is a translation in the platform's row-vector
// convention (offset in the fourth row).
func rowVectorTranslation(x, y, z float32) transform.Transform {
	return transform.Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		x, y, z, 1,
	}
}

var (
	camera = fakeCS("camera")
	world  = fakeCS("world")
)

func legacyRef(props map[metadata.Key]any) *fakeRef {
	return &fakeRef{buf: newBuffer(pixel.NativeBgra8, 64, 48), props: props}
}

func trackedAnchors(m transform.Transform) fakeAnchors {
	return fakeAnchors{{"camera", "world"}: m}
}

func posInf() float64 { return math.Inf(1) }
