// Package intrinsics describes the per-frame pinhole camera model supplied
// by the platform.
package intrinsics

import (
	"fmt"
	"strconv"
)

// CameraIntrinsics is the optical model for one frame. It is a value type
// and is never mutated after construction.
type CameraIntrinsics struct {
	ImageWidth       uint32  // pixels
	ImageHeight      uint32  // pixels
	FocalLengthX     float32 // pixels
	FocalLengthY     float32 // pixels
	PrincipalPointX  float32 // pixels
	PrincipalPointY  float32 // pixels
	RadialDistK1     float32
	RadialDistK2     float32
	RadialDistK3     float32
	TangentialDistP1 float32
	TangentialDistP2 float32
}

// Vec2 and Vec3 mirror the platform's vector fields on its native
// intrinsics object.
type Vec2 struct{ X, Y float32 }
type Vec3 struct{ X, Y, Z float32 }

// Native is the platform-native intrinsics object exposed by frame sources
// that provide a direct accessor.
type Native struct {
	ImageWidth           uint32
	ImageHeight          uint32
	FocalLength          Vec2
	PrincipalPoint       Vec2
	RadialDistortion     Vec3
	TangentialDistortion Vec2
}

// FromNative converts the platform intrinsics object.
func FromNative(n Native) CameraIntrinsics {
	return CameraIntrinsics{
		ImageWidth:       n.ImageWidth,
		ImageHeight:      n.ImageHeight,
		FocalLengthX:     n.FocalLength.X,
		FocalLengthY:     n.FocalLength.Y,
		PrincipalPointX:  n.PrincipalPoint.X,
		PrincipalPointY:  n.PrincipalPoint.Y,
		RadialDistK1:     n.RadialDistortion.X,
		RadialDistK2:     n.RadialDistortion.Y,
		RadialDistK3:     n.RadialDistortion.Z,
		TangentialDistP1: n.TangentialDistortion.X,
		TangentialDistP2: n.TangentialDistortion.Y,
	}
}

// HasImageSize reports whether both image dimensions are non-zero, which is
// required before deriving a projection.
func (c CameraIntrinsics) HasImageSize() bool {
	return c.ImageWidth > 0 && c.ImageHeight > 0
}

// PixelToNormalized maps a pixel coordinate to the normalized image plane
// (z = 1) without removing distortion.
func (c CameraIntrinsics) PixelToNormalized(u, v float32) (x, y float32) {
	return (u - c.PrincipalPointX) / c.FocalLengthX, (v - c.PrincipalPointY) / c.FocalLengthY
}

// NormalizedToPixel is the inverse of PixelToNormalized.
func (c CameraIntrinsics) NormalizedToPixel(x, y float32) (u, v float32) {
	return x*c.FocalLengthX + c.PrincipalPointX, y*c.FocalLengthY + c.PrincipalPointY
}

// Distort applies the Brown-Conrady model to a normalized image point.
func (c CameraIntrinsics) Distort(x, y float32) (xd, yd float32) {
	r2 := x*x + y*y
	radial := 1 + c.RadialDistK1*r2 + c.RadialDistK2*r2*r2 + c.RadialDistK3*r2*r2*r2
	xd = x*radial + 2*c.TangentialDistP1*x*y + c.TangentialDistP2*(r2+2*x*x)
	yd = y*radial + c.TangentialDistP1*(r2+2*y*y) + 2*c.TangentialDistP2*x*y
	return xd, yd
}

// String prints every field with four significant digits.
func (c CameraIntrinsics) String() string {
	return fmt.Sprintf("Image Width:%s, Image Height:%s, "+
		"Focal Length X:%s, Focal Length Y:%s, "+
		"Principal Point X:%s, Principal Point Y:%s, "+
		"Radial Distortion K1:%s, Radial Distortion K2:%s, Radial Distortion K3:%s, "+
		"Tangential Distortion P1:%s, Tangential Distortion P2:%s",
		g4(float32(c.ImageWidth)), g4(float32(c.ImageHeight)),
		g4(c.FocalLengthX), g4(c.FocalLengthY),
		g4(c.PrincipalPointX), g4(c.PrincipalPointY),
		g4(c.RadialDistK1), g4(c.RadialDistK2), g4(c.RadialDistK3),
		g4(c.TangentialDistP1), g4(c.TangentialDistP2))
}

func g4(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', 4, 32)
}
