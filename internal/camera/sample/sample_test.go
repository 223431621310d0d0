package sample

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/camstream/internal/camera/intrinsics"
	"github.com/banshee-data/camstream/internal/camera/metadata"
	"github.com/banshee-data/camstream/internal/camera/pixel"
	"github.com/banshee-data/camstream/internal/camera/transform"
	"github.com/banshee-data/camstream/internal/config"
	"github.com/banshee-data/camstream/internal/testutil"
)

func mustResolver(t *testing.T, opts ResolverOptions) *Resolver {
	t.Helper()
	r, err := NewResolver(opts)
	require.NoError(t, err)
	return r
}

func mustSample(t *testing.T, r *Resolver, ref FrameReference) *Sample {
	t.Helper()
	s, err := r.NewSample(ref)
	require.NoError(t, err)
	return s
}

func TestCameraToWorld_NoWorldOrigin(t *testing.T) {
	anchors := trackedAnchors(rowVectorTranslation(1, 2, 3))
	refs := map[string]FrameReference{
		"legacy with blobs": legacyRef(map[metadata.Key]any{
			metadata.KeyViewTransform:          metadata.EncodeMatrix4x4(transform.Identity),
			metadata.KeyCameraCoordinateSystem: camera,
		}),
		"legacy empty": legacyRef(nil),
		"direct":       &fakeDirectRef{fakeRef: *legacyRef(nil), cs: camera},
	}
	for _, source := range []MetadataSource{Legacy{}, Direct{}} {
		r := mustResolver(t, ResolverOptions{Source: source, Anchors: anchors})
		for name, ref := range refs {
			s := mustSample(t, r, ref)
			m, ok := s.TryGetCameraToWorld()
			assert.False(t, ok, "%s/%s", source.Kind(), name)
			assert.Equal(t, transform.Identity, m, "%s/%s", source.Kind(), name)
		}
	}
}

func TestCameraToWorld_Legacy(t *testing.T) {
	anchors := trackedAnchors(rowVectorTranslation(1, 2, 3))
	r := mustResolver(t, ResolverOptions{Source: Legacy{}, Anchors: anchors, WorldOrigin: world})

	t.Run("identity view", func(t *testing.T) {
		s := mustSample(t, r, legacyRef(map[metadata.Key]any{
			metadata.KeyViewTransform:          metadata.EncodeMatrix4x4(transform.Identity),
			metadata.KeyCameraCoordinateSystem: camera,
		}))
		m, ok := s.TryGetCameraToWorld()
		require.True(t, ok)
		assert.Equal(t, transform.Transform{
			1, 0, 0, 1,
			0, 1, 0, 2,
			0, 0, -1, -3,
			0, 0, 0, 1,
		}, m)
	})

	t.Run("view is inverted and composed", func(t *testing.T) {
		s := mustSample(t, r, legacyRef(map[metadata.Key]any{
			metadata.KeyViewTransform:          metadata.EncodeMatrix4x4(rowVectorTranslation(0, 0, -5)),
			metadata.KeyCameraCoordinateSystem: camera,
		}))
		m, ok := s.TryGetCameraToWorld()
		require.True(t, ok)
		want := transform.Transform{
			1, 0, 0, 1,
			0, 1, 0, 2,
			0, 0, -1, -8,
			0, 0, 0, 1,
		}
		testutil.AssertTransformNear(t, m, want, 1e-5)
	})

	unavailable := map[string]map[metadata.Key]any{
		"no view transform": {
			metadata.KeyCameraCoordinateSystem: camera,
		},
		"no coordinate system": {
			metadata.KeyViewTransform: metadata.EncodeMatrix4x4(transform.Identity),
		},
		"short view transform": {
			metadata.KeyViewTransform:          make([]byte, 60),
			metadata.KeyCameraCoordinateSystem: camera,
		},
		"singular view transform": {
			metadata.KeyViewTransform:          make([]byte, 64),
			metadata.KeyCameraCoordinateSystem: camera,
		},
		"view transform of wrong type": {
			metadata.KeyViewTransform:          "not bytes",
			metadata.KeyCameraCoordinateSystem: camera,
		},
		"coordinate system of wrong type": {
			metadata.KeyViewTransform:          metadata.EncodeMatrix4x4(transform.Identity),
			metadata.KeyCameraCoordinateSystem: []byte{1, 2, 3},
		},
		"untracked coordinate system": {
			metadata.KeyViewTransform:          metadata.EncodeMatrix4x4(transform.Identity),
			metadata.KeyCameraCoordinateSystem: fakeCS("lost"),
		},
	}
	for name, props := range unavailable {
		t.Run(name, func(t *testing.T) {
			s := mustSample(t, r, legacyRef(props))
			m, ok := s.TryGetCameraToWorld()
			assert.False(t, ok)
			assert.Equal(t, transform.Identity, m)
		})
	}
}

func TestCameraToWorld_Direct(t *testing.T) {
	rot := transform.Transform{ // 90° about Z, row-vector convention
		0, 1, 0, 0,
		-1, 0, 0, 0,
		0, 0, 1, 0,
		4, 5, 6, 1,
	}
	r := mustResolver(t, ResolverOptions{Source: Direct{}, Anchors: trackedAnchors(rot), WorldOrigin: world})

	t.Run("transposed and flipped", func(t *testing.T) {
		s := mustSample(t, r, &fakeDirectRef{fakeRef: *legacyRef(nil), cs: camera})
		m, ok := s.TryGetCameraToWorld()
		require.True(t, ok)
		assert.Equal(t, transform.Transform{
			0, -1, 0, 4,
			1, 0, 0, 5,
			0, 0, -1, -6,
			0, 0, 0, 1,
		}, m)
		assert.True(t, m.IsRigid(1e-5))
	})

	t.Run("frame without accessors", func(t *testing.T) {
		s := mustSample(t, r, legacyRef(map[metadata.Key]any{
			metadata.KeyCameraCoordinateSystem: camera,
		}))
		m, ok := s.TryGetCameraToWorld()
		assert.False(t, ok)
		assert.Equal(t, transform.Identity, m)
	})

	t.Run("no coordinate system", func(t *testing.T) {
		s := mustSample(t, r, &fakeDirectRef{fakeRef: *legacyRef(nil)})
		_, ok := s.TryGetCameraToWorld()
		assert.False(t, ok)
	})

	t.Run("non-finite provider transform", func(t *testing.T) {
		bad := rot
		bad[12] = float32(posInf())
		r := mustResolver(t, ResolverOptions{Source: Direct{}, Anchors: trackedAnchors(bad), WorldOrigin: world})
		s := mustSample(t, r, &fakeDirectRef{fakeRef: *legacyRef(nil), cs: camera})
		m, ok := s.TryGetCameraToWorld()
		assert.False(t, ok)
		assert.Equal(t, transform.Identity, m)
	})

	t.Run("no anchor provider", func(t *testing.T) {
		r := mustResolver(t, ResolverOptions{Source: Direct{}, WorldOrigin: world})
		s := mustSample(t, r, &fakeDirectRef{fakeRef: *legacyRef(nil), cs: camera})
		_, ok := s.TryGetCameraToWorld()
		assert.False(t, ok)
	})
}

func TestCameraToWorld_HandednessConfig(t *testing.T) {
	anchors := trackedAnchors(rowVectorTranslation(1, 2, 3))
	ref := func() FrameReference { return &fakeDirectRef{fakeRef: *legacyRef(nil), cs: camera} }

	noFlip := mustResolver(t, ResolverOptions{
		Source: Direct{}, Anchors: anchors, WorldOrigin: world,
		Config: config.DefaultResolverConfig().WithHandedness(false, 2),
	})
	m, ok := mustSample(t, noFlip, ref()).TryGetCameraToWorld()
	require.True(t, ok)
	assert.Equal(t, transform.Transform{1, 0, 0, 1, 0, 1, 0, 2, 0, 0, 1, 3, 0, 0, 0, 1}, m)

	flipX := mustResolver(t, ResolverOptions{
		Source: Direct{}, Anchors: anchors, WorldOrigin: world,
		Config: config.DefaultResolverConfig().WithHandedness(true, 0),
	})
	m, ok = mustSample(t, flipX, ref()).TryGetCameraToWorld()
	require.True(t, ok)
	assert.Equal(t, transform.Transform{-1, 0, 0, -1, 0, 1, 0, 2, 0, 0, 1, 3, 0, 0, 0, 1}, m)
}

func TestWithWorldOrigin(t *testing.T) {
	anchors := trackedAnchors(rowVectorTranslation(1, 2, 3))
	base := mustResolver(t, ResolverOptions{Source: Direct{}, Anchors: anchors})
	withOrigin := base.WithWorldOrigin(world)

	ref := &fakeDirectRef{fakeRef: *legacyRef(nil), cs: camera}
	_, ok := mustSample(t, base, ref).TryGetCameraToWorld()
	assert.False(t, ok)
	_, ok = mustSample(t, withOrigin, ref).TryGetCameraToWorld()
	assert.True(t, ok)
}

func TestProjection_DirectStrategy(t *testing.T) {
	raw := transform.Transform{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}
	r := mustResolver(t, ResolverOptions{Source: Legacy{}})
	s := mustSample(t, r, legacyRef(map[metadata.Key]any{
		metadata.KeyProjectionTransform: metadata.EncodeMatrix4x4(raw),
	}))
	m, ok := s.TryGetProjectionMatrix()
	require.True(t, ok)
	assert.Equal(t, raw.Transpose(), m)

	stored, err := s.ProjectionTransform()
	require.NoError(t, err)
	assert.Equal(t, raw, stored)
}

func TestProjection_DerivedStrategy(t *testing.T) {
	native := intrinsics.Native{
		ImageWidth:     640,
		ImageHeight:    480,
		FocalLength:    intrinsics.Vec2{X: 600, Y: 600},
		PrincipalPoint: intrinsics.Vec2{X: 320, Y: 240},
	}
	r := mustResolver(t, ResolverOptions{Source: Direct{}})
	s := mustSample(t, r, &fakeDirectRef{fakeRef: *legacyRef(nil), native: native, hasNative: true})

	m, ok := s.TryGetProjectionMatrix()
	require.True(t, ok)

	// Row-major output is the transpose of the assembled matrix, so
	// the -1 sits at M43 and the clip term at M34.
	assert.InDelta(t, 1.875, m.At(0, 0), 1e-6)
	assert.InDelta(t, 2.5, m.At(1, 1), 1e-6)
	assert.Equal(t, float32(0), m.At(0, 2))
	assert.Equal(t, float32(0), m.At(1, 2))
	assert.InDelta(t, -1.0002, m.At(2, 2), 1e-4)
	assert.Equal(t, float32(-1), m.At(3, 2))
	assert.InDelta(t, -0.20002, m.At(2, 3), 1e-5)
	assert.Equal(t, float32(0), m.At(3, 3))
}

func TestProjection_LegacyFallsBackToIntrinsics(t *testing.T) {
	blob := metadata.EncodeFloatSequence([]float32{0, 0, 0, 600, 600, 320, 240, 0, 0, 0, 0, 0})
	r := mustResolver(t, ResolverOptions{Source: Legacy{}})
	ref := &fakeRef{
		buf: newBuffer(pixel.NativeBgra8, 640, 480),
		props: map[metadata.Key]any{
			metadata.KeyPinholeIntrinsics:   blob,
			metadata.KeyProjectionTransform: make([]byte, 12), // malformed
		},
	}
	s := mustSample(t, r, ref)
	m, ok := s.TryGetProjectionMatrix()
	require.True(t, ok)
	assert.InDelta(t, 1.875, m.At(0, 0), 1e-6)

	_, err := s.ProjectionTransform()
	assert.True(t, errors.Is(err, metadata.ErrMalformedMetadata))
}

func TestProjection_Unavailable(t *testing.T) {
	for _, source := range []MetadataSource{Legacy{}, Direct{}} {
		r := mustResolver(t, ResolverOptions{Source: source})
		s := mustSample(t, r, &fakeDirectRef{fakeRef: *legacyRef(nil)})
		m, ok := s.TryGetProjectionMatrix()
		assert.False(t, ok, source.Kind())
		assert.Equal(t, transform.Identity, m)
	}
}

func TestProjection_CustomClip(t *testing.T) {
	blob := metadata.EncodeFloatSequence([]float32{0, 0, 0, 600, 600, 320, 240, 0, 0, 0, 0, 0})
	r := mustResolver(t, ResolverOptions{Config: config.DefaultResolverConfig().WithClip(1, 3)})
	s := mustSample(t, r, legacyRef(map[metadata.Key]any{metadata.KeyPinholeIntrinsics: blob}))
	m, ok := s.TryGetProjectionMatrix()
	require.True(t, ok)
	assert.InDelta(t, -2.0, m.At(2, 2), 1e-6) // -(3+1)/(3-1)
	assert.InDelta(t, -3.0, m.At(2, 3), 1e-6) // -2*3*1/(3-1)
}

func TestProjectionFromIntrinsics_Errors(t *testing.T) {
	c := intrinsics.CameraIntrinsics{ImageWidth: 640, ImageHeight: 480, FocalLengthX: 1, FocalLengthY: 1}

	_, err := ProjectionFromIntrinsics(intrinsics.CameraIntrinsics{}, 0.1, 1000)
	assert.Error(t, err)
	_, err = ProjectionFromIntrinsics(c, 0, 1000)
	assert.Error(t, err)
	_, err = ProjectionFromIntrinsics(c, 10, 1)
	assert.Error(t, err)

	off := c
	off.PrincipalPointX = 0
	off.PrincipalPointY = 480
	m, err := ProjectionFromIntrinsics(off, 0.1, 1000)
	require.NoError(t, err)
	assert.Equal(t, float32(1), m.At(0, 2))
	assert.Equal(t, float32(1), m.At(1, 2))
}

func TestIntrinsics(t *testing.T) {
	t.Run("legacy blob", func(t *testing.T) {
		blob := metadata.EncodeFloatSequence([]float32{9, 9, 9, 500, 501, 30, 20, 0.1, 0.2, 0.3, 0.4, 0.5})
		s := mustSample(t, mustResolver(t, ResolverOptions{}), legacyRef(map[metadata.Key]any{
			metadata.KeyPinholeIntrinsics: blob,
		}))
		c, ok := s.Intrinsics()
		require.True(t, ok)
		assert.Equal(t, uint32(64), c.ImageWidth)
		assert.Equal(t, uint32(48), c.ImageHeight)
		assert.Equal(t, float32(501), c.FocalLengthY)
		assert.Equal(t, float32(0.5), c.TangentialDistP2)
	})

	t.Run("absent", func(t *testing.T) {
		s := mustSample(t, mustResolver(t, ResolverOptions{}), legacyRef(nil))
		_, ok := s.Intrinsics()
		assert.False(t, ok)
	})

	t.Run("malformed blob fails construction", func(t *testing.T) {
		ref := legacyRef(map[metadata.Key]any{
			metadata.KeyPinholeIntrinsics: metadata.EncodeFloatSequence(make([]float32, 11)),
		})
		_, err := mustResolver(t, ResolverOptions{}).NewSample(ref)
		require.Error(t, err)
		assert.True(t, errors.Is(err, metadata.ErrMalformedMetadata))
		assert.Contains(t, err.Error(), "expected 12 values, got 11")
		assert.Equal(t, 0, ref.released, "ownership stays with caller")
	})

	t.Run("direct fills missing image size", func(t *testing.T) {
		ref := &fakeDirectRef{
			fakeRef:   *legacyRef(nil),
			native:    intrinsics.Native{FocalLength: intrinsics.Vec2{X: 10, Y: 11}},
			hasNative: true,
		}
		s := mustSample(t, mustResolver(t, ResolverOptions{Source: Direct{}}), ref)
		c, ok := s.Intrinsics()
		require.True(t, ok)
		assert.Equal(t, uint32(64), c.ImageWidth)
		assert.Equal(t, uint32(48), c.ImageHeight)
		assert.Equal(t, float32(11), c.FocalLengthY)
	})
}

func TestLayout(t *testing.T) {
	r := mustResolver(t, ResolverOptions{})

	nv12 := mustSample(t, r, &fakeRef{buf: newBuffer(pixel.NativeNv12, 760, 428)})
	assert.Equal(t, pixel.NV12, nv12.PixelFormat())
	assert.Equal(t, 768, nv12.FrameWidth())
	assert.Equal(t, 428, nv12.FrameHeight())
	assert.Equal(t, 768*428*6/4, nv12.ByteLength())

	bgra := mustSample(t, r, &fakeRef{buf: newBuffer(pixel.NativeBgra8, 640, 480)})
	assert.Equal(t, pixel.BGRA32, bgra.PixelFormat())
	assert.Equal(t, 1228800, bgra.ByteLength())

	unknown := mustSample(t, r, &fakeRef{buf: newBuffer(pixel.NativeYuy2, 640, 480)})
	assert.Equal(t, pixel.Unknown, unknown.PixelFormat())
	assert.Equal(t, pixel.UnsupportedByteLength, unknown.ByteLength())
}

func TestLayout_ConfiguredPaddedWidths(t *testing.T) {
	cfg := &config.ResolverConfig{NV12PaddedWidths: []int{2000}}
	r := mustResolver(t, ResolverOptions{Config: cfg})
	s := mustSample(t, r, &fakeRef{buf: &fakeBuffer{format: pixel.NativeNv12, width: 2000, height: 10}})
	assert.Equal(t, 2048, s.FrameWidth())
	s = mustSample(t, r, &fakeRef{buf: &fakeBuffer{format: pixel.NativeNv12, width: 760, height: 10}})
	assert.Equal(t, 760, s.FrameWidth())
}

func TestCopyPixelsInto(t *testing.T) {
	r := mustResolver(t, ResolverOptions{})

	t.Run("exact size", func(t *testing.T) {
		ref := &fakeRef{buf: newBuffer(pixel.NativeBgra8, 8, 4)}
		s := mustSample(t, r, ref)
		assert.False(t, s.Copied())
		dst := make([]byte, s.ByteLength())
		require.NoError(t, s.CopyPixelsInto(dst))
		assert.Equal(t, ref.buf.data, dst)
		assert.True(t, s.Copied())

		// repeated copies overwrite
		dst2 := make([]byte, s.ByteLength())
		require.NoError(t, s.CopyPixelsInto(dst2))
		assert.Equal(t, dst, dst2)
	})

	t.Run("larger buffer only receives byteLength bytes", func(t *testing.T) {
		ref := &fakeRef{buf: newBuffer(pixel.NativeNv12, 500, 2)}
		s := mustSample(t, r, ref)
		dst := bytes.Repeat([]byte{0xAA}, s.ByteLength()+16)
		require.NoError(t, s.CopyPixelsInto(dst))
		assert.Equal(t, ref.buf.data, dst[:s.ByteLength()])
		assert.Equal(t, bytes.Repeat([]byte{0xAA}, 16), dst[s.ByteLength():])
	})

	t.Run("too small leaves destination untouched", func(t *testing.T) {
		s := mustSample(t, r, &fakeRef{buf: newBuffer(pixel.NativeBgra8, 8, 4)})
		dst := bytes.Repeat([]byte{0x55}, s.ByteLength()-1)
		err := s.CopyPixelsInto(dst)
		assert.True(t, errors.Is(err, ErrBufferTooSmall))
		assert.Equal(t, bytes.Repeat([]byte{0x55}, s.ByteLength()-1), dst)
		assert.False(t, s.Copied())
	})

	t.Run("nil buffer", func(t *testing.T) {
		s := mustSample(t, r, &fakeRef{buf: newBuffer(pixel.NativeBgra8, 8, 4)})
		assert.True(t, errors.Is(s.CopyPixelsInto(nil), ErrInvalidArgument))
	})

	t.Run("unknown format", func(t *testing.T) {
		s := mustSample(t, r, &fakeRef{buf: newBuffer(pixel.NativeYuy2, 8, 4)})
		assert.True(t, errors.Is(s.CopyPixelsInto(make([]byte, 1024)), ErrUnsupportedOperation))
	})

	t.Run("short read from platform", func(t *testing.T) {
		buf := newBuffer(pixel.NativeBgra8, 8, 4)
		buf.data = buf.data[:10]
		s := mustSample(t, r, &fakeRef{buf: buf})
		assert.Error(t, s.CopyPixelsInto(make([]byte, s.ByteLength())))
		assert.False(t, s.Copied())
	})
}

func TestUnsupportedOperations(t *testing.T) {
	s := mustSample(t, mustResolver(t, ResolverOptions{}), legacyRef(nil))
	var growable bytes.Buffer
	assert.True(t, errors.Is(s.AppendPixelsTo(&growable), ErrUnsupportedOperation))
	assert.Equal(t, 0, growable.Len())
	assert.True(t, errors.Is(s.UploadToTexture(struct{}{}), ErrUnsupportedOperation))
}

func TestViewTransformExplicitDecode(t *testing.T) {
	r := mustResolver(t, ResolverOptions{})

	s := mustSample(t, r, legacyRef(nil))
	_, err := s.ViewTransform()
	assert.True(t, errors.Is(err, metadata.ErrMalformedMetadata))

	v := rowVectorTranslation(1, 2, 3)
	s = mustSample(t, r, legacyRef(map[metadata.Key]any{metadata.KeyViewTransform: metadata.EncodeMatrix4x4(v)}))
	got, err := s.ViewTransform()
	require.NoError(t, err)
	assert.Equal(t, v, got)

	s = mustSample(t, r, legacyRef(map[metadata.Key]any{metadata.KeyViewTransform: 42}))
	_, err = s.ViewTransform()
	assert.True(t, errors.Is(err, metadata.ErrMalformedMetadata))
}

func TestClose(t *testing.T) {
	r := mustResolver(t, ResolverOptions{})

	ref := legacyRef(nil)
	s := mustSample(t, r, ref)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, ref.buf.released)
	assert.Equal(t, 1, ref.released)

	ref = legacyRef(nil)
	ref.buf.releaseErr = errors.New("buffer gone")
	ref.releaseErr = errors.New("frame gone")
	s = mustSample(t, r, ref)
	err := s.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buffer gone")
	assert.Contains(t, err.Error(), "frame gone")
	assert.Equal(t, 1, ref.released, "frame is released even if the buffer fails")
}

func TestNewSample_InvalidInput(t *testing.T) {
	r := mustResolver(t, ResolverOptions{})
	_, err := r.NewSample(nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	_, err = r.NewSample(&fakeRef{})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestNewResolver_InvalidConfig(t *testing.T) {
	_, err := NewResolver(ResolverOptions{Config: config.DefaultResolverConfig().WithClip(5, 1)})
	assert.Error(t, err)
}
