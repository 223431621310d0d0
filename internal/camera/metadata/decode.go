// Package metadata decodes the raw byte blobs attached to captured frames.
//
// All blobs are packed little-endian IEEE-754 single-precision floats.
package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/camstream/internal/camera/transform"
)

// Blob layout constants.
const (
	FLOAT_SIZE       = 4                          // bytes per packed float32
	MATRIX_FLOATS    = 16                         // 4x4 matrix
	MATRIX_SIZE      = MATRIX_FLOATS * FLOAT_SIZE // 64 bytes
	INTRINSICS_COUNT = 12                         // 3 header values + 9 intrinsic components
	INTRINSICS_START = 3                          // first intrinsic component after the header
)

// ErrMalformedMetadata is returned when a blob is absent or has the wrong
// size for the requested decode.
var ErrMalformedMetadata = errors.New("malformed metadata")

// DecodeFloatSequence interprets b as packed little-endian float32 values.
// The length must be a positive multiple of 4.
func DecodeFloatSequence(b []byte) ([]float32, error) {
	if len(b) < FLOAT_SIZE || len(b)%FLOAT_SIZE != 0 {
		return nil, fmt.Errorf("%w: expected a positive multiple of %d bytes, got %d",
			ErrMalformedMetadata, FLOAT_SIZE, len(b))
	}
	out := make([]float32, len(b)/FLOAT_SIZE)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*FLOAT_SIZE:]))
	}
	return out, nil
}

// EncodeFloatSequence packs values as little-endian float32.
func EncodeFloatSequence(values []float32) []byte {
	out := make([]byte, len(values)*FLOAT_SIZE)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*FLOAT_SIZE:], math.Float32bits(v))
	}
	return out
}

// DecodeMatrix4x4 decodes exactly 64 bytes into a matrix, assigning values
// in declaration order M11..M44. A nil blob is malformed.
func DecodeMatrix4x4(b []byte) (transform.Transform, error) {
	if b == nil {
		return transform.Identity, fmt.Errorf("%w: matrix blob is absent", ErrMalformedMetadata)
	}
	if len(b) != MATRIX_SIZE {
		return transform.Identity, fmt.Errorf("%w: matrix blob should be %d bytes, got %d",
			ErrMalformedMetadata, MATRIX_SIZE, len(b))
	}
	var m transform.Transform
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*FLOAT_SIZE:]))
	}
	return m, nil
}

// EncodeMatrix4x4 is the inverse of DecodeMatrix4x4.
func EncodeMatrix4x4(m transform.Transform) []byte {
	return EncodeFloatSequence(m[:])
}
