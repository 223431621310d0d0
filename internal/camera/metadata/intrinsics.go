package metadata

import (
	"fmt"

	"github.com/banshee-data/camstream/internal/camera/intrinsics"
)

// DecodeIntrinsicsFromFloatArray maps values[3:12] to the nine intrinsic
// components in the order focalX, focalY, principalX, principalY, k1, k2,
// k3, p1, p2. Indices 0..2 are header values and anything past index 11 is
// ignored. The float layout carries no image size, so the caller supplies
// the frame dimensions.
func DecodeIntrinsicsFromFloatArray(values []float32, width, height uint32) (intrinsics.CameraIntrinsics, error) {
	if len(values) < INTRINSICS_COUNT {
		return intrinsics.CameraIntrinsics{}, fmt.Errorf("%w: expected %d values, got %d",
			ErrMalformedMetadata, INTRINSICS_COUNT, len(values))
	}
	v := values[INTRINSICS_START:INTRINSICS_COUNT]
	return intrinsics.CameraIntrinsics{
		ImageWidth:       width,
		ImageHeight:      height,
		FocalLengthX:     v[0],
		FocalLengthY:     v[1],
		PrincipalPointX:  v[2],
		PrincipalPointY:  v[3],
		RadialDistK1:     v[4],
		RadialDistK2:     v[5],
		RadialDistK3:     v[6],
		TangentialDistP1: v[7],
		TangentialDistP2: v[8],
	}, nil
}

// DecodeIntrinsics decodes a packed intrinsics blob.
func DecodeIntrinsics(b []byte, width, height uint32) (intrinsics.CameraIntrinsics, error) {
	values, err := DecodeFloatSequence(b)
	if err != nil {
		return intrinsics.CameraIntrinsics{}, fmt.Errorf("decode intrinsics: %w", err)
	}
	return DecodeIntrinsicsFromFloatArray(values, width, height)
}
