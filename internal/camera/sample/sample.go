// Package sample resolves one captured frame into the values a renderer
// needs: the pixel layout, the camera intrinsics, the camera-to-world pose
// and the projection.
//
// A Resolver is configured once per frame source with the metadata variant
// for the device, the world anchor provider and the world origin. It turns
// each acquired FrameReference into a Sample. A Sample is owned by a single
// consumer and must be closed exactly once; it does no locking.
//
// Pose and projection lookups never fail with an error. When the data is
// unavailable (no tracking, stream not started, device without that
// metadata) they report false together with the identity transform so the
// caller can keep rendering.
package sample

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/banshee-data/camstream/internal/camera/intrinsics"
	"github.com/banshee-data/camstream/internal/camera/metadata"
	"github.com/banshee-data/camstream/internal/camera/pixel"
	"github.com/banshee-data/camstream/internal/camera/transform"
	"github.com/banshee-data/camstream/internal/config"
)

var (
	// ErrInvalidArgument is returned for a missing destination buffer.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBufferTooSmall is returned when the destination cannot hold the
	// frame payload.
	ErrBufferTooSmall = errors.New("buffer too small")
	// ErrUnsupportedOperation is returned by operations that are
	// deliberately not implemented.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// Source is the metadata variant. Defaults to Legacy.
	Source MetadataSource
	// Anchors relates camera coordinate systems to WorldOrigin.
	Anchors WorldAnchorProvider
	// WorldOrigin is the application's reference frame. When nil no pose
	// can be resolved.
	WorldOrigin CoordinateSystem
	// Config supplies clip planes, handedness and the NV12 width quirk.
	// Defaults to config.DefaultResolverConfig().
	Config *config.ResolverConfig
}

// Resolver creates Samples for one frame source. It holds no per-frame
// state and may be shared between goroutines.
type Resolver struct {
	source       MetadataSource
	anchors      WorldAnchorProvider
	worldOrigin  CoordinateSystem
	near, far    float32
	flip         bool
	flipRow      int
	paddedWidths []int
}

// NewResolver validates opts and returns a Resolver.
func NewResolver(opts ResolverOptions) (*Resolver, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultResolverConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("resolver config: %w", err)
	}
	source := opts.Source
	if source == nil {
		source = Legacy{}
	}
	return &Resolver{
		source:       source,
		anchors:      opts.Anchors,
		worldOrigin:  opts.WorldOrigin,
		near:         float32(cfg.GetNearClip()),
		far:          float32(cfg.GetFarClip()),
		flip:         cfg.GetFlipHandedness(),
		flipRow:      cfg.GetHandednessRow(),
		paddedWidths: cfg.GetNV12PaddedWidths(),
	}, nil
}

// Source returns the metadata variant in use.
func (r *Resolver) Source() MetadataSource { return r.source }

// WithWorldOrigin returns a copy of r that resolves poses against origin.
func (r *Resolver) WithWorldOrigin(origin CoordinateSystem) *Resolver {
	out := *r
	out.worldOrigin = origin
	return &out
}

// NewSample wraps an acquired frame. On success the Sample owns ref and
// releases it on Close. On error ownership stays with the caller; this
// only happens when the intrinsics blob is present but malformed.
func (r *Resolver) NewSample(ref FrameReference) (*Sample, error) {
	if ref == nil {
		return nil, fmt.Errorf("%w: nil frame reference", ErrInvalidArgument)
	}
	buf := ref.PixelBuffer()
	if buf == nil {
		return nil, fmt.Errorf("%w: frame has no pixel buffer", ErrInvalidArgument)
	}

	intr, err := r.source.Intrinsics(ref, buf.Width(), buf.Height())
	if err != nil {
		return nil, fmt.Errorf("camera intrinsics: %w", err)
	}

	return &Sample{
		resolver:   r,
		ref:        ref,
		buf:        buf,
		layout:     pixel.ResolveLayout(buf.NativeFormat(), buf.Width(), buf.Height(), r.paddedWidths),
		intrinsics: intr,
	}, nil
}

// Sample is one captured frame with its metadata.
type Sample struct {
	resolver   *Resolver
	ref        FrameReference
	buf        PixelBuffer
	layout     pixel.Layout
	intrinsics *intrinsics.CameraIntrinsics
	copied     bool
}

// PixelFormat returns the consumer pixel format.
func (s *Sample) PixelFormat() pixel.Format { return s.layout.Format }

// FrameWidth returns the width after the NV12 padding correction.
func (s *Sample) FrameWidth() int { return s.layout.Width }

// FrameHeight returns the frame height.
func (s *Sample) FrameHeight() int { return s.layout.Height }

// ByteLength returns the payload size, or pixel.UnsupportedByteLength for
// unknown formats.
func (s *Sample) ByteLength() int { return s.layout.ByteLength }

// Layout returns the resolved pixel layout.
func (s *Sample) Layout() pixel.Layout { return s.layout }

// Intrinsics returns the frame's camera intrinsics, or false when the
// frame carries none.
func (s *Sample) Intrinsics() (intrinsics.CameraIntrinsics, bool) {
	if s.intrinsics == nil {
		return intrinsics.CameraIntrinsics{}, false
	}
	return *s.intrinsics, true
}

// Copied reports whether CopyPixelsInto has succeeded at least once. It is
// informational only.
func (s *Sample) Copied() bool { return s.copied }

// CopyPixelsInto copies exactly ByteLength bytes of raw pixel payload into
// dst. Nothing is written when dst is too small. Repeated copies are
// allowed.
func (s *Sample) CopyPixelsInto(dst []byte) error {
	if dst == nil {
		return fmt.Errorf("%w: destination buffer is nil", ErrInvalidArgument)
	}
	if !s.layout.Supported() {
		return fmt.Errorf("%w: cannot copy pixels of format %s", ErrUnsupportedOperation, s.layout.Format)
	}
	n := s.layout.ByteLength
	if len(dst) < n {
		return fmt.Errorf("%w: need %d bytes, got %d; size the buffer from ByteLength",
			ErrBufferTooSmall, n, len(dst))
	}
	copied, err := s.buf.CopyTo(dst[:n])
	if err != nil {
		return fmt.Errorf("copy pixels: %w", err)
	}
	if copied != n {
		return fmt.Errorf("copy pixels: buffer produced %d bytes, want %d", copied, n)
	}
	s.copied = true
	return nil
}

// AppendPixelsTo is not supported: pixels must be copied into a fixed
// length slice sized from ByteLength.
func (s *Sample) AppendPixelsTo(*bytes.Buffer) error {
	return fmt.Errorf("%w: copy into a []byte of ByteLength bytes instead of a growable buffer", ErrUnsupportedOperation)
}

// UploadToTexture is not supported.
func (s *Sample) UploadToTexture(any) error {
	return fmt.Errorf("%w: texture upload belongs to the renderer", ErrUnsupportedOperation)
}

// TryGetCameraToWorld returns the camera-to-world pose for this frame in
// row-major order, converted to the renderer's handedness. It returns the
// identity and false when no world origin is set or the pose cannot be
// resolved.
func (s *Sample) TryGetCameraToWorld() (transform.Transform, bool) {
	r := s.resolver
	if r.worldOrigin == nil {
		diagf("no world origin set")
		return transform.Identity, false
	}
	if r.anchors == nil {
		diagf("no world anchor provider")
		return transform.Identity, false
	}
	m, ok := r.source.CameraToWorld(s.ref, r.anchors, r.worldOrigin)
	if !ok {
		return transform.Identity, false
	}
	if r.flip {
		m = m.NegateRow(r.flipRow)
	}
	return m, true
}

// TryGetProjectionMatrix returns the projection for this frame in
// row-major order. A projection blob is used when the frame carries one,
// otherwise the projection is derived from intrinsics. It returns the
// identity and false when neither is available.
func (s *Sample) TryGetProjectionMatrix() (transform.Transform, bool) {
	r := s.resolver
	if blob, ok := r.source.ProjectionBlob(s.ref); ok {
		m, err := metadata.DecodeMatrix4x4(blob)
		if err == nil {
			return m.Transpose(), true
		}
		opsf("projection transform: %v", err)
	}

	if s.intrinsics == nil {
		diagf("frame has neither projection transform nor intrinsics")
		return transform.Identity, false
	}
	m, err := ProjectionFromIntrinsics(*s.intrinsics, r.near, r.far)
	if err != nil {
		opsf("derive projection: %v", err)
		return transform.Identity, false
	}
	return m, true
}

// ViewTransform decodes the frame's raw view transform blob as stored,
// without transposing. Absent or wrong-sized blobs fail with
// metadata.ErrMalformedMetadata.
func (s *Sample) ViewTransform() (transform.Transform, error) {
	return s.decodeMatrixProperty(metadata.KeyViewTransform)
}

// ProjectionTransform decodes the frame's raw projection transform blob as
// stored, without transposing.
func (s *Sample) ProjectionTransform() (transform.Transform, error) {
	return s.decodeMatrixProperty(metadata.KeyProjectionTransform)
}

func (s *Sample) decodeMatrixProperty(key metadata.Key) (transform.Transform, error) {
	b, _, err := propertyBytes(s.ref, key)
	if err != nil {
		return transform.Identity, err
	}
	m, err := metadata.DecodeMatrix4x4(b)
	if err != nil {
		return transform.Identity, fmt.Errorf("%s: %w", metadata.KeyName(key), err)
	}
	return m, nil
}

// Close releases the pixel buffer and the frame reference. It must be
// called exactly once; the Sample is unusable afterwards.
func (s *Sample) Close() error {
	var errs []error
	if err := s.buf.Release(); err != nil {
		opsf("release pixel buffer: %v", err)
		errs = append(errs, fmt.Errorf("release pixel buffer: %w", err))
	}
	if err := s.ref.Release(); err != nil {
		opsf("release frame: %v", err)
		errs = append(errs, fmt.Errorf("release frame: %w", err))
	}
	return errors.Join(errs...)
}
