package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/camstream/internal/camera/pixel"
	"github.com/banshee-data/camstream/internal/fsutil"
)

// DefaultConfigPath is the conventional location of the resolver config.
const DefaultConfigPath = "config/resolver.json"

// Metadata source selections.
const (
	MetadataSourceAuto   = "auto"
	MetadataSourceLegacy = "legacy"
	MetadataSourceDirect = "direct"
)

// ResolverConfig holds the knobs for resolving frame layout, pose and
// projection. Every field is optional; the Get* methods fall back to the
// defaults the platform integration has always used.
type ResolverConfig struct {
	// Projection clip planes, in metres.
	NearClip *float64 `json:"near_clip,omitempty"`
	FarClip  *float64 `json:"far_clip,omitempty"`

	// Handedness correction applied to camera-to-world poses.
	FlipHandedness *bool `json:"flip_handedness,omitempty"`
	HandednessRow  *int  `json:"handedness_row,omitempty"` // zero-based

	// NV12 widths reported without their row padding.
	NV12PaddedWidths []int `json:"nv12_padded_widths,omitempty"`

	// "auto", "legacy" or "direct".
	MetadataSource *string `json:"metadata_source,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// DefaultResolverConfig returns a config with every field unset, so all
// getters report defaults.
func DefaultResolverConfig() *ResolverConfig {
	return &ResolverConfig{}
}

// LoadResolverConfig loads a ResolverConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults.
func LoadResolverConfig(path string) (*ResolverConfig, error) {
	return LoadResolverConfigFrom(fsutil.OSFileSystem{}, path)
}

// LoadResolverConfigFrom loads a ResolverConfig from fsys.
func LoadResolverConfigFrom(fsys fsutil.FileSystem, path string) (*ResolverConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultResolverConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *ResolverConfig) Validate() error {
	near, far := c.GetNearClip(), c.GetFarClip()
	if near <= 0 {
		return fmt.Errorf("near_clip must be positive, got %f", near)
	}
	if far <= 0 {
		return fmt.Errorf("far_clip must be positive, got %f", far)
	}
	if far <= near {
		return fmt.Errorf("far_clip (%f) must be greater than near_clip (%f)", far, near)
	}

	if c.HandednessRow != nil && (*c.HandednessRow < 0 || *c.HandednessRow > 3) {
		return fmt.Errorf("handedness_row must be between 0 and 3, got %d", *c.HandednessRow)
	}

	for _, w := range c.NV12PaddedWidths {
		if w <= 0 {
			return fmt.Errorf("nv12_padded_widths must be positive, got %d", w)
		}
	}

	switch c.GetMetadataSource() {
	case MetadataSourceAuto, MetadataSourceLegacy, MetadataSourceDirect:
	default:
		return fmt.Errorf("metadata_source must be one of auto, legacy, direct; got %q", c.GetMetadataSource())
	}

	return nil
}

// GetNearClip returns the near clip distance or the default.
func (c *ResolverConfig) GetNearClip() float64 {
	if c.NearClip == nil {
		return 0.1
	}
	return *c.NearClip
}

// GetFarClip returns the far clip distance or the default.
func (c *ResolverConfig) GetFarClip() float64 {
	if c.FarClip == nil {
		return 1000
	}
	return *c.FarClip
}

// GetFlipHandedness returns whether poses are converted to left-handed.
func (c *ResolverConfig) GetFlipHandedness() bool {
	if c.FlipHandedness == nil {
		return true
	}
	return *c.FlipHandedness
}

// GetHandednessRow returns the zero-based row negated by the handedness
// correction. Default is the third row.
func (c *ResolverConfig) GetHandednessRow() int {
	if c.HandednessRow == nil {
		return 2
	}
	return *c.HandednessRow
}

// GetNV12PaddedWidths returns the quirk width set or the default. An
// explicit empty list turns the width correction off.
func (c *ResolverConfig) GetNV12PaddedWidths() []int {
	if c.NV12PaddedWidths == nil {
		return pixel.DefaultPaddedWidths
	}
	return c.NV12PaddedWidths
}

// GetMetadataSource returns the metadata source selection or "auto".
func (c *ResolverConfig) GetMetadataSource() string {
	if c.MetadataSource == nil || *c.MetadataSource == "" {
		return MetadataSourceAuto
	}
	return *c.MetadataSource
}

// WithClip returns a copy with the clip planes overridden.
func (c *ResolverConfig) WithClip(near, far float64) *ResolverConfig {
	out := *c
	out.NearClip = ptrFloat64(near)
	out.FarClip = ptrFloat64(far)
	return &out
}

// WithMetadataSource returns a copy with the metadata source overridden.
func (c *ResolverConfig) WithMetadataSource(source string) *ResolverConfig {
	out := *c
	out.MetadataSource = ptrString(source)
	return &out
}

// WithHandedness returns a copy with the handedness correction overridden.
func (c *ResolverConfig) WithHandedness(flip bool, row int) *ResolverConfig {
	out := *c
	out.FlipHandedness = ptrBool(flip)
	out.HandednessRow = ptrInt(row)
	return &out
}
