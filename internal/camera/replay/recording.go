// Package replay is a frame source backed by a YAML recording. It stands in
// for the headset platform: it hands out frame references with pixel
// buffers and property maps, and answers coordinate system queries.
package replay

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/camstream/internal/camera/intrinsics"
	"github.com/banshee-data/camstream/internal/camera/metadata"
	"github.com/banshee-data/camstream/internal/camera/pixel"
	"github.com/banshee-data/camstream/internal/camera/sample"
	"github.com/banshee-data/camstream/internal/fsutil"
)

// Recording is the on-disk form of a capture session.
type Recording struct {
	Device            string             `yaml:"device"`       // gen1, gen2 or unknown
	WorldOrigin       string             `yaml:"world_origin"` // empty: origin never set
	CoordinateSystems []CoordinateSystem `yaml:"coordinate_systems"`
	Frames            []Frame            `yaml:"frames"`

	// NV12PaddedWidths is the device's quirk width set. Nil leaves the
	// choice to the caller; an empty list means the device pads nothing.
	NV12PaddedWidths []int `yaml:"nv12_padded_widths"`
}

// CoordinateSystem describes one camera coordinate system and how it
// relates to the world origin.
type CoordinateSystem struct {
	Name string `yaml:"name"`
	// ToOrigin is the transform to the world origin as the platform
	// reports it (row-vector convention), 16 row-major values.
	ToOrigin []float32 `yaml:"to_origin"`
	// Untracked systems cannot be related to the origin.
	Untracked bool `yaml:"untracked"`
}

// Frame is one recorded frame.
type Frame struct {
	Format string `yaml:"format"` // bgra8, nv12 or any other native name
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Fill   byte   `yaml:"fill"`

	// Property map entries. Matrices are 16 row-major values and are
	// packed into 64 byte blobs; intrinsics are packed as given.
	CoordinateSystem    string    `yaml:"coordinate_system"`
	ViewTransform       []float32 `yaml:"view_transform"`
	ProjectionTransform []float32 `yaml:"projection_transform"`
	Intrinsics          []float32 `yaml:"intrinsics"`
	// Raw blobs by key name, hex encoded, for malformed-data scenarios.
	RawProperties map[string]string `yaml:"raw_properties"`

	// Direct accessor fields for gen2 devices.
	NativeIntrinsics *NativeIntrinsics `yaml:"native_intrinsics"`
}

// NativeIntrinsics is the YAML form of intrinsics.Native.
type NativeIntrinsics struct {
	ImageWidth           uint32     `yaml:"image_width"`
	ImageHeight          uint32     `yaml:"image_height"`
	FocalLength          [2]float32 `yaml:"focal_length"`
	PrincipalPoint       [2]float32 `yaml:"principal_point"`
	RadialDistortion     [3]float32 `yaml:"radial_distortion"`
	TangentialDistortion [2]float32 `yaml:"tangential_distortion"`
}

func (n NativeIntrinsics) native() intrinsics.Native {
	return intrinsics.Native{
		ImageWidth:           n.ImageWidth,
		ImageHeight:          n.ImageHeight,
		FocalLength:          intrinsics.Vec2{X: n.FocalLength[0], Y: n.FocalLength[1]},
		PrincipalPoint:       intrinsics.Vec2{X: n.PrincipalPoint[0], Y: n.PrincipalPoint[1]},
		RadialDistortion:     intrinsics.Vec3{X: n.RadialDistortion[0], Y: n.RadialDistortion[1], Z: n.RadialDistortion[2]},
		TangentialDistortion: intrinsics.Vec2{X: n.TangentialDistortion[0], Y: n.TangentialDistortion[1]},
	}
}

var nativeFormats = map[string]pixel.NativeFormat{
	"bgra8":  pixel.NativeBgra8,
	"nv12":   pixel.NativeNv12,
	"rgba8":  pixel.NativeRgba8,
	"rgba16": pixel.NativeRgba16,
	"gray8":  pixel.NativeGray8,
	"gray16": pixel.NativeGray16,
	"p010":   pixel.NativeP010,
	"yuy2":   pixel.NativeYuy2,
}

// ParseNativeFormat maps a recording format name to the native tag.
func ParseNativeFormat(s string) (pixel.NativeFormat, error) {
	f, ok := nativeFormats[strings.ToLower(s)]
	if !ok {
		return pixel.NativeUnknown, fmt.Errorf("unknown pixel format %q", s)
	}
	return f, nil
}

// Load reads and validates a recording file.
func Load(path string) (*Recording, error) {
	return LoadFrom(fsutil.OSFileSystem{}, path)
}

// LoadFrom reads and validates a recording from fsys.
func LoadFrom(fsys fsutil.FileSystem, path string) (*Recording, error) {
	data, err := fsys.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a recording.
func Parse(data []byte) (*Recording, error) {
	var rec Recording
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse recording YAML: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recording: %w", err)
	}
	return &rec, nil
}

// Generation returns the parsed device generation.
func (r *Recording) Generation() sample.DeviceGeneration {
	gen, _ := sample.ParseDeviceGeneration(r.Device)
	return gen
}

// Validate checks references between frames and coordinate systems and the
// shape of every matrix.
func (r *Recording) Validate() error {
	if _, err := sample.ParseDeviceGeneration(r.Device); err != nil {
		return err
	}

	names := make(map[string]bool, len(r.CoordinateSystems))
	for i, cs := range r.CoordinateSystems {
		if cs.Name == "" {
			return fmt.Errorf("coordinate_systems[%d]: name is required", i)
		}
		if names[cs.Name] {
			return fmt.Errorf("coordinate_systems[%d]: duplicate name %q", i, cs.Name)
		}
		names[cs.Name] = true
		if !cs.Untracked && len(cs.ToOrigin) != 16 {
			return fmt.Errorf("coordinate system %q: to_origin needs 16 values, got %d", cs.Name, len(cs.ToOrigin))
		}
	}
	for _, w := range r.NV12PaddedWidths {
		if w <= 0 {
			return fmt.Errorf("nv12_padded_widths must be positive, got %d", w)
		}
	}

	if r.WorldOrigin != "" && names[r.WorldOrigin] {
		return fmt.Errorf("world_origin %q clashes with a camera coordinate system", r.WorldOrigin)
	}

	for i, f := range r.Frames {
		if _, err := ParseNativeFormat(f.Format); err != nil {
			return fmt.Errorf("frames[%d]: %w", i, err)
		}
		if f.Width <= 0 || f.Height <= 0 {
			return fmt.Errorf("frames[%d]: width and height must be positive, got %dx%d", i, f.Width, f.Height)
		}
		if f.CoordinateSystem != "" && !names[f.CoordinateSystem] {
			return fmt.Errorf("frames[%d]: unknown coordinate system %q", i, f.CoordinateSystem)
		}
		if f.ViewTransform != nil && len(f.ViewTransform) != 16 {
			return fmt.Errorf("frames[%d]: view_transform needs 16 values, got %d", i, len(f.ViewTransform))
		}
		if f.ProjectionTransform != nil && len(f.ProjectionTransform) != 16 {
			return fmt.Errorf("frames[%d]: projection_transform needs 16 values, got %d", i, len(f.ProjectionTransform))
		}
		for name, raw := range f.RawProperties {
			if _, ok := metadata.KeyByName(name); !ok {
				return fmt.Errorf("frames[%d]: unknown property %q", i, name)
			}
			if _, err := hex.DecodeString(raw); err != nil {
				return fmt.Errorf("frames[%d]: property %q: %w", i, name, err)
			}
		}
	}
	return nil
}
