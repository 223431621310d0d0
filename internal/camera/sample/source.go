package sample

import (
	"fmt"
	"strings"

	"github.com/banshee-data/camstream/internal/camera/intrinsics"
	"github.com/banshee-data/camstream/internal/camera/metadata"
	"github.com/banshee-data/camstream/internal/camera/transform"
	"github.com/banshee-data/camstream/internal/config"
)

// DeviceGeneration identifies the headset generation, which decides how
// frame metadata is exposed.
type DeviceGeneration int

const (
	DeviceUnknown DeviceGeneration = iota
	DeviceGen1                     // view/projection/intrinsics as byte blobs
	DeviceGen2                     // coordinate system and intrinsics accessors
)

func (g DeviceGeneration) String() string {
	switch g {
	case DeviceGen1:
		return "gen1"
	case DeviceGen2:
		return "gen2"
	default:
		return "unknown"
	}
}

// ParseDeviceGeneration parses "gen1", "gen2" or "unknown".
func ParseDeviceGeneration(s string) (DeviceGeneration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gen1", "1":
		return DeviceGen1, nil
	case "gen2", "2":
		return DeviceGen2, nil
	case "", "unknown":
		return DeviceUnknown, nil
	default:
		return DeviceUnknown, fmt.Errorf("unknown device generation %q", s)
	}
}

// SourceKind names a MetadataSource variant.
type SourceKind string

const (
	SourceLegacy SourceKind = "legacy"
	SourceDirect SourceKind = "direct"
)

// MetadataSource reads pose, projection and intrinsics metadata from a
// frame. One variant is chosen per frame source and used for every frame
// it produces.
type MetadataSource interface {
	Kind() SourceKind

	// Intrinsics returns nil with no error when the frame carries none.
	// width and height are the frame's reported dimensions.
	Intrinsics(ref FrameReference, width, height int) (*intrinsics.CameraIntrinsics, error)

	// CameraToWorld returns the camera-to-world pose in column-vector
	// convention, before any handedness correction.
	CameraToWorld(ref FrameReference, anchors WorldAnchorProvider, worldOrigin CoordinateSystem) (transform.Transform, bool)

	// ProjectionBlob returns the raw projection matrix blob if the frame
	// carries one.
	ProjectionBlob(ref FrameReference) ([]byte, bool)
}

// SelectMetadataSource picks the variant for a device generation. A
// non-auto override from configuration wins. Unknown devices use Legacy.
func SelectMetadataSource(gen DeviceGeneration, override string) MetadataSource {
	switch override {
	case config.MetadataSourceLegacy:
		return Legacy{}
	case config.MetadataSourceDirect:
		return Direct{}
	}
	if gen == DeviceGen2 {
		return Direct{}
	}
	return Legacy{}
}

// Legacy reads everything from the frame property map: the camera
// coordinate system handle, a 64 byte view transform, a 64 byte projection
// transform and a packed intrinsics blob.
type Legacy struct{}

func (Legacy) Kind() SourceKind { return SourceLegacy }

func (Legacy) Intrinsics(ref FrameReference, width, height int) (*intrinsics.CameraIntrinsics, error) {
	b, ok, err := propertyBytes(ref, metadata.KeyPinholeIntrinsics)
	if err != nil || !ok {
		return nil, err
	}
	c, err := metadata.DecodeIntrinsics(b, uint32(width), uint32(height))
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (Legacy) CameraToWorld(ref FrameReference, anchors WorldAnchorProvider, worldOrigin CoordinateSystem) (transform.Transform, bool) {
	viewBlob, ok, err := propertyBytes(ref, metadata.KeyViewTransform)
	if err != nil {
		opsf("view transform: %v", err)
		return transform.Identity, false
	}
	if !ok {
		diagf("frame has no view transform")
		return transform.Identity, false
	}
	view, err := metadata.DecodeMatrix4x4(viewBlob)
	if err != nil {
		opsf("view transform: %v", err)
		return transform.Identity, false
	}

	cs, ok := propertyCoordinateSystem(ref)
	if !ok {
		diagf("frame has no camera coordinate system")
		return transform.Identity, false
	}
	cameraToOrigin, ok := anchors.TransformBetween(cs, worldOrigin)
	if !ok {
		diagf("cannot relate %s to %s", cs.Name(), worldOrigin.Name())
		return transform.Identity, false
	}
	if !cameraToOrigin.IsFinite() {
		opsf("transform from %s to %s is not finite", cs.Name(), worldOrigin.Name())
		return transform.Identity, false
	}

	// Both matrices arrive in row-vector convention; transpose them before
	// composing.
	viewToCamera, err := view.Transpose().Inverse()
	if err != nil {
		opsf("view transform: %v", err)
		return transform.Identity, false
	}
	return cameraToOrigin.Transpose().Mul(viewToCamera), true
}

func (Legacy) ProjectionBlob(ref FrameReference) ([]byte, bool) {
	b, ok, err := propertyBytes(ref, metadata.KeyProjectionTransform)
	if err != nil {
		opsf("projection transform: %v", err)
		return nil, false
	}
	return b, ok
}

// Direct reads the coordinate system and intrinsics through DirectAccessor.
// Frames from these devices carry no view or projection blobs; projection
// is always derived from intrinsics.
type Direct struct{}

func (Direct) Kind() SourceKind { return SourceDirect }

func (Direct) Intrinsics(ref FrameReference, width, height int) (*intrinsics.CameraIntrinsics, error) {
	acc, ok := ref.(DirectAccessor)
	if !ok {
		return nil, nil
	}
	n, ok := acc.CameraIntrinsics()
	if !ok {
		return nil, nil
	}
	c := intrinsics.FromNative(n)
	if c.ImageWidth == 0 {
		c.ImageWidth = uint32(width)
	}
	if c.ImageHeight == 0 {
		c.ImageHeight = uint32(height)
	}
	return &c, nil
}

func (Direct) CameraToWorld(ref FrameReference, anchors WorldAnchorProvider, worldOrigin CoordinateSystem) (transform.Transform, bool) {
	acc, ok := ref.(DirectAccessor)
	if !ok {
		diagf("frame reference has no direct accessors")
		return transform.Identity, false
	}
	cs, ok := acc.CoordinateSystem()
	if !ok || cs == nil {
		diagf("frame has no camera coordinate system")
		return transform.Identity, false
	}
	cameraToOrigin, ok := anchors.TransformBetween(cs, worldOrigin)
	if !ok {
		diagf("cannot relate %s to %s", cs.Name(), worldOrigin.Name())
		return transform.Identity, false
	}
	if !cameraToOrigin.IsFinite() {
		opsf("transform from %s to %s is not finite", cs.Name(), worldOrigin.Name())
		return transform.Identity, false
	}
	return cameraToOrigin.Transpose(), true
}

func (Direct) ProjectionBlob(FrameReference) ([]byte, bool) {
	return nil, false
}

func propertyCoordinateSystem(ref FrameReference) (CoordinateSystem, bool) {
	v, ok := ref.Property(metadata.KeyCameraCoordinateSystem)
	if !ok {
		return nil, false
	}
	cs, ok := v.(CoordinateSystem)
	if !ok || cs == nil {
		return nil, false
	}
	return cs, true
}

func malformedType(key metadata.Key, v any) error {
	return fmt.Errorf("%w: %s holds %T, want []byte",
		metadata.ErrMalformedMetadata, metadata.KeyName(key), v)
}
