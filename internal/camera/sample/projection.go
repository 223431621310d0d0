package sample

import (
	"fmt"

	"github.com/banshee-data/camstream/internal/camera/intrinsics"
	"github.com/banshee-data/camstream/internal/camera/transform"
)

// ProjectionFromIntrinsics builds a perspective projection from pinhole
// intrinsics and clip distances. The matrix is assembled in row-vector
// convention and transposed, so the result is row-major with -1 at M43.
func ProjectionFromIntrinsics(c intrinsics.CameraIntrinsics, near, far float32) (transform.Transform, error) {
	if !c.HasImageSize() {
		return transform.Identity, fmt.Errorf("intrinsics have no image size (%dx%d)", c.ImageWidth, c.ImageHeight)
	}
	if near <= 0 || far <= near {
		return transform.Identity, fmt.Errorf("invalid clip planes near=%g far=%g", near, far)
	}

	w := float32(c.ImageWidth)
	h := float32(c.ImageHeight)

	var m transform.Transform
	m.Set(0, 0, 2*c.FocalLengthX/w)
	m.Set(2, 0, 1-2*c.PrincipalPointX/w)
	m.Set(1, 1, 2*c.FocalLengthY/h)
	m.Set(2, 1, -1+2*c.PrincipalPointY/h)
	m.Set(2, 2, -(far+near)/(far-near))
	m.Set(3, 2, -2*far*near/(far-near))
	m.Set(2, 3, -1)

	return m.Transpose(), nil
}
