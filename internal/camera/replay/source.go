package replay

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/camstream/internal/camera/intrinsics"
	"github.com/banshee-data/camstream/internal/camera/metadata"
	"github.com/banshee-data/camstream/internal/camera/pixel"
	"github.com/banshee-data/camstream/internal/camera/sample"
	"github.com/banshee-data/camstream/internal/camera/transform"
	"github.com/banshee-data/camstream/internal/fsutil"
	"github.com/banshee-data/camstream/internal/monitoring"
)

var logf = monitoring.Component("replay")

// ErrAlreadyReleased is returned when a frame or buffer is released twice.
var ErrAlreadyReleased = errors.New("replay: already released")

// coordinateSystem is the replay's opaque handle.
type coordinateSystem struct {
	name string
}

func (c *coordinateSystem) Name() string { return c.name }

// Source replays a Recording. Frames are handed out in order by Next.
type Source struct {
	rec         *Recording
	gen         sample.DeviceGeneration
	worldOrigin *coordinateSystem
	systems     map[string]*coordinateSystem
	toOrigin    map[*coordinateSystem]transform.Transform

	mu           sync.Mutex
	paddedWidths []int
	next         int
	outstanding  int
}

// NewSource prepares a recording for replay.
func NewSource(rec *Recording) (*Source, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recording: %w", err)
	}
	s := &Source{
		rec:      rec,
		gen:      rec.Generation(),
		systems:  make(map[string]*coordinateSystem, len(rec.CoordinateSystems)),
		toOrigin: make(map[*coordinateSystem]transform.Transform),

		paddedWidths: pixel.DefaultPaddedWidths,
	}
	if rec.NV12PaddedWidths != nil {
		s.paddedWidths = rec.NV12PaddedWidths
	}
	if rec.WorldOrigin != "" {
		s.worldOrigin = &coordinateSystem{name: rec.WorldOrigin}
	}
	for _, cs := range rec.CoordinateSystems {
		h := &coordinateSystem{name: cs.Name}
		s.systems[cs.Name] = h
		if cs.Untracked {
			continue
		}
		m, err := transform.FromRowMajor(cs.ToOrigin)
		if err != nil {
			return nil, fmt.Errorf("coordinate system %q: %w", cs.Name, err)
		}
		s.toOrigin[h] = m
	}
	return s, nil
}

// Open loads a recording file and prepares it for replay.
func Open(path string) (*Source, error) {
	return OpenFrom(fsutil.OSFileSystem{}, path)
}

// OpenFrom loads a recording from fsys and prepares it for replay.
func OpenFrom(fsys fsutil.FileSystem, path string) (*Source, error) {
	rec, err := LoadFrom(fsys, path)
	if err != nil {
		return nil, err
	}
	return NewSource(rec)
}

// DeviceGeneration returns the generation recorded for the device.
func (s *Source) DeviceGeneration() sample.DeviceGeneration { return s.gen }

// WorldOrigin returns the recording's world origin, or nil when the
// application never set one.
func (s *Source) WorldOrigin() sample.CoordinateSystem {
	if s.worldOrigin == nil {
		return nil
	}
	return s.worldOrigin
}

// UsePaddedWidths sets the NV12 widths the replayed device pads, unless
// the recording carries its own set. Buffers handed out afterwards are
// sized with it.
func (s *Source) UsePaddedWidths(widths []int) {
	if s.rec.NV12PaddedWidths != nil {
		return
	}
	s.mu.Lock()
	s.paddedWidths = widths
	s.mu.Unlock()
}

// PaddedWidths returns the NV12 widths buffers are padded for.
func (s *Source) PaddedWidths() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paddedWidths
}

// Len returns the number of recorded frames.
func (s *Source) Len() int { return len(s.rec.Frames) }

// Outstanding returns the number of frames handed out and not yet
// released.
func (s *Source) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outstanding
}

// TransformBetween implements sample.WorldAnchorProvider. Only transforms
// from a tracked camera coordinate system to the world origin are known.
func (s *Source) TransformBetween(from, to sample.CoordinateSystem) (transform.Transform, bool) {
	src, ok := from.(*coordinateSystem)
	if !ok {
		return transform.Identity, false
	}
	if dst, ok := to.(*coordinateSystem); !ok || dst != s.worldOrigin {
		return transform.Identity, false
	}
	m, ok := s.toOrigin[src]
	if !ok {
		return transform.Identity, false
	}
	return m, true
}

// Next returns the next recorded frame, or io.EOF after the last one.
func (s *Source) Next(ctx context.Context) (sample.FrameReference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.next >= len(s.rec.Frames) {
		s.mu.Unlock()
		return nil, io.EOF
	}
	idx := s.next
	s.next++
	s.outstanding++
	widths := s.paddedWidths
	s.mu.Unlock()

	ref, err := s.buildFrame(idx, s.rec.Frames[idx], widths)
	if err != nil {
		s.release()
		return nil, err
	}
	return ref, nil
}

func (s *Source) release() {
	s.mu.Lock()
	s.outstanding--
	s.mu.Unlock()
}

func (s *Source) buildFrame(idx int, f Frame, paddedWidths []int) (sample.FrameReference, error) {
	format, err := ParseNativeFormat(f.Format)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", idx, err)
	}

	props := make(map[metadata.Key]any)
	var cs *coordinateSystem
	if f.CoordinateSystem != "" {
		cs = s.systems[f.CoordinateSystem]
	}

	// Gen2 frames expose the coordinate system through the accessor only.
	if cs != nil && s.gen != sample.DeviceGen2 {
		props[metadata.KeyCameraCoordinateSystem] = cs
	}
	if f.ViewTransform != nil {
		props[metadata.KeyViewTransform] = metadata.EncodeFloatSequence(f.ViewTransform)
	}
	if f.ProjectionTransform != nil {
		props[metadata.KeyProjectionTransform] = metadata.EncodeFloatSequence(f.ProjectionTransform)
	}
	if f.Intrinsics != nil {
		props[metadata.KeyPinholeIntrinsics] = metadata.EncodeFloatSequence(f.Intrinsics)
	}
	for name, raw := range f.RawProperties {
		key, _ := metadata.KeyByName(name)
		b, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("frame %d: property %q: %w", idx, name, err)
		}
		props[key] = b
	}

	ref := &frameRef{
		source: s,
		index:  idx,
		buffer: newBuffer(format, f.Width, f.Height, f.Fill, paddedWidths),
		props:  props,
	}
	if s.gen != sample.DeviceGen2 {
		return ref, nil
	}

	direct := &directFrameRef{frameRef: ref}
	if cs != nil {
		direct.cs = cs
	}
	if f.NativeIntrinsics != nil {
		direct.native = f.NativeIntrinsics.native()
		direct.hasNative = true
	}
	return direct, nil
}

// frameRef implements sample.FrameReference.
type frameRef struct {
	source   *Source
	index    int
	buffer   *buffer
	props    map[metadata.Key]any
	released bool
}

// Index returns the frame's position in the recording.
func (f *frameRef) Index() int { return f.index }

func (f *frameRef) PixelBuffer() sample.PixelBuffer { return f.buffer }

func (f *frameRef) Property(key metadata.Key) (any, bool) {
	v, ok := f.props[key]
	return v, ok
}

func (f *frameRef) Release() error {
	if f.released {
		logf("frame %d released twice", f.index)
		return fmt.Errorf("frame %d: %w", f.index, ErrAlreadyReleased)
	}
	f.released = true
	f.source.release()
	return nil
}

// directFrameRef adds the gen2 accessors.
type directFrameRef struct {
	*frameRef
	cs        *coordinateSystem
	native    intrinsics.Native
	hasNative bool
}

func (f *directFrameRef) CoordinateSystem() (sample.CoordinateSystem, bool) {
	if f.cs == nil {
		return nil, false
	}
	return f.cs, true
}

func (f *directFrameRef) CameraIntrinsics() (intrinsics.Native, bool) {
	return f.native, f.hasNative
}

// buffer synthesises a pixel payload of the size the platform would
// deliver: the padded width for the device's NV12 quirk widths.
type buffer struct {
	format        pixel.NativeFormat
	width, height int
	data          []byte
	released      bool
}

func newBuffer(format pixel.NativeFormat, width, height int, fill byte, paddedWidths []int) *buffer {
	layout := pixel.ResolveLayout(format, width, height, paddedWidths)
	n := layout.ByteLength
	if n < 0 {
		n = 0
	}
	data := make([]byte, n)
	for i := range data {
		data[i] = fill
	}
	return &buffer{format: format, width: width, height: height, data: data}
}

func (b *buffer) NativeFormat() pixel.NativeFormat { return b.format }
func (b *buffer) Width() int                       { return b.width }
func (b *buffer) Height() int                      { return b.height }

func (b *buffer) CopyTo(dst []byte) (int, error) {
	if b.released {
		return 0, ErrAlreadyReleased
	}
	return copy(dst, b.data), nil
}

func (b *buffer) Release() error {
	if b.released {
		return ErrAlreadyReleased
	}
	b.released = true
	return nil
}
