package sample

import (
	"github.com/banshee-data/camstream/internal/camera/intrinsics"
	"github.com/banshee-data/camstream/internal/camera/metadata"
	"github.com/banshee-data/camstream/internal/camera/pixel"
	"github.com/banshee-data/camstream/internal/camera/transform"
)

// CoordinateSystem is an opaque handle to a platform spatial coordinate
// system. Handles are owned by the frame source; a Sample only borrows
// them while resolving.
type CoordinateSystem interface {
	Name() string
}

// WorldAnchorProvider relates two coordinate systems. TransformBetween
// returns false when the device cannot currently relate them, for example
// after loss of tracking. The returned matrix uses the platform's
// row-vector convention (translation in the fourth row).
type WorldAnchorProvider interface {
	TransformBetween(from, to CoordinateSystem) (transform.Transform, bool)
}

// PixelBuffer is the platform bitmap behind one frame.
type PixelBuffer interface {
	NativeFormat() pixel.NativeFormat
	Width() int
	Height() int
	// CopyTo copies the raw payload into dst and returns the number of
	// bytes written.
	CopyTo(dst []byte) (int, error)
	Release() error
}

// FrameReference is one acquired frame: its pixel buffer and its property
// map. Property values are either []byte blobs or CoordinateSystem
// handles.
type FrameReference interface {
	PixelBuffer() PixelBuffer
	Property(key metadata.Key) (any, bool)
	Release() error
}

// DirectAccessor is implemented by frame references on devices that expose
// the camera coordinate system and intrinsics without going through the
// property map.
type DirectAccessor interface {
	CoordinateSystem() (CoordinateSystem, bool)
	CameraIntrinsics() (intrinsics.Native, bool)
}

// propertyBytes looks up a byte blob. A present value that is not a byte
// slice is reported as malformed.
func propertyBytes(ref FrameReference, key metadata.Key) ([]byte, bool, error) {
	v, ok := ref.Property(key)
	if !ok || v == nil {
		return nil, false, nil
	}
	b, isBytes := v.([]byte)
	if !isBytes {
		return nil, true, malformedType(key, v)
	}
	return b, true, nil
}
