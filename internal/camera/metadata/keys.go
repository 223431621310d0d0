package metadata

import "github.com/google/uuid"

// Key identifies one piece of per-frame auxiliary data in a frame's property
// map. Keys are the platform's sample-extension GUIDs.
type Key = uuid.UUID

// Well-known frame property keys.
var (
	// KeyCameraCoordinateSystem maps to the coordinate system the frame's
	// pose is expressed in.
	KeyCameraCoordinateSystem = uuid.MustParse("9D13C82F-2199-4E67-91CD-D1A4181F2534")
	// KeyViewTransform maps to a 64 byte world-to-camera matrix.
	KeyViewTransform = uuid.MustParse("4E251FA4-830F-4770-859A-4B8D99AA809B")
	// KeyProjectionTransform maps to a 64 byte camera projection matrix.
	KeyProjectionTransform = uuid.MustParse("47F9FCB5-2A02-4F26-A477-792FDF95886A")
	// KeyPinholeIntrinsics maps to at least 12 packed floats; the first
	// three are header values.
	KeyPinholeIntrinsics = uuid.MustParse("4EE3B6C5-6A15-4E72-9761-70C1DB8B9FE3")
	// KeyCameraExtrinsics is present on some devices but not decoded.
	KeyCameraExtrinsics = uuid.MustParse("6B761658-B7EC-4C3B-8225-8623CABEC31D")
	// KeyDeviceReferenceSystemTime carries the capture time in 100ns ticks.
	KeyDeviceReferenceSystemTime = uuid.MustParse("6523775A-BA2D-405F-B2C5-01FF88E2E8F6")
)

var keyNames = map[Key]string{
	KeyCameraCoordinateSystem:    "camera_coordinate_system",
	KeyViewTransform:             "view_transform",
	KeyProjectionTransform:       "projection_transform",
	KeyPinholeIntrinsics:         "pinhole_intrinsics",
	KeyCameraExtrinsics:          "camera_extrinsics",
	KeyDeviceReferenceSystemTime: "device_reference_system_time",
}

// KeyName returns the short name of a well-known key, or the GUID string
// for anything else.
func KeyName(k Key) string {
	if n, ok := keyNames[k]; ok {
		return n
	}
	return k.String()
}

// KeyByName returns the well-known key with the given short name.
func KeyByName(name string) (Key, bool) {
	for k, n := range keyNames {
		if n == name {
			return k, true
		}
	}
	return uuid.Nil, false
}
