// Package framelog persists a summary of every resolved frame to SQLite:
// its pixel layout, intrinsics, pose and projection. Matrices and
// intrinsics are stored in the same packed float layout the platform uses
// for its property blobs.
package framelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/camstream/internal/camera/intrinsics"
	"github.com/banshee-data/camstream/internal/camera/metadata"
	"github.com/banshee-data/camstream/internal/camera/transform"
	"github.com/banshee-data/camstream/internal/monitoring"
	"github.com/banshee-data/camstream/internal/timeutil"
)

var logf = monitoring.Component("framelog")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
}

// Store is a frame log backed by a SQLite database.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame log: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &Store{db: db, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	logf("opened %s", path)
	return s, nil
}

// SetClock replaces the clock used to stamp entries.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Entry is one logged frame.
type Entry struct {
	ID             string
	Sequence       int64
	CapturedAt     time.Time
	MetadataSource string
	PixelFormat    string
	FrameWidth     int
	FrameHeight    int
	ByteLength     int
	Copied         bool

	// Nil when the frame had no intrinsics, pose or projection.
	Intrinsics    *intrinsics.CameraIntrinsics
	CameraToWorld *transform.Transform
	Projection    *transform.Transform
}

// Record inserts e. ID and CapturedAt are filled in when empty. The
// stored entry is returned.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CapturedAt.IsZero() {
		e.CapturedAt = s.clock.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frames (
			frame_id, sequence, captured_at_ns, metadata_source, pixel_format,
			frame_width, frame_height, byte_length, copied,
			intrinsics, camera_to_world, projection
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Sequence, e.CapturedAt.UnixNano(), e.MetadataSource, e.PixelFormat,
		e.FrameWidth, e.FrameHeight, e.ByteLength, e.Copied,
		encodeIntrinsics(e.Intrinsics), encodeMatrix(e.CameraToWorld), encodeMatrix(e.Projection),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert frame %d: %w", e.Sequence, err)
	}
	return e, nil
}

// List returns up to limit entries in sequence order. A limit of zero or
// less returns every entry.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_id, sequence, captured_at_ns, metadata_source, pixel_format,
		       frame_width, frame_height, byte_length, copied,
		       intrinsics, camera_to_world, projection
		FROM frames
		ORDER BY sequence, captured_at_ns
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                Entry
			capturedNs       int64
			intr, pose, proj []byte
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &capturedNs, &e.MetadataSource, &e.PixelFormat,
			&e.FrameWidth, &e.FrameHeight, &e.ByteLength, &e.Copied,
			&intr, &pose, &proj); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		e.CapturedAt = time.Unix(0, capturedNs).UTC()
		if e.Intrinsics, err = decodeIntrinsics(intr, e.FrameWidth, e.FrameHeight); err != nil {
			return nil, fmt.Errorf("frame %s: %w", e.ID, err)
		}
		if e.CameraToWorld, err = decodeMatrix(pose); err != nil {
			return nil, fmt.Errorf("frame %s: camera_to_world: %w", e.ID, err)
		}
		if e.Projection, err = decodeMatrix(proj); err != nil {
			return nil, fmt.Errorf("frame %s: projection: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of logged frames.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM frames").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count frames: %w", err)
	}
	return n, nil
}

func encodeMatrix(m *transform.Transform) []byte {
	if m == nil {
		return nil
	}
	return metadata.EncodeMatrix4x4(*m)
}

func decodeMatrix(b []byte) (*transform.Transform, error) {
	if b == nil {
		return nil, nil
	}
	m, err := metadata.DecodeMatrix4x4(b)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Intrinsics keep their own image size in the first two header slots.
func encodeIntrinsics(c *intrinsics.CameraIntrinsics) []byte {
	if c == nil {
		return nil
	}
	return metadata.EncodeFloatSequence([]float32{
		float32(c.ImageWidth), float32(c.ImageHeight), 0,
		c.FocalLengthX, c.FocalLengthY,
		c.PrincipalPointX, c.PrincipalPointY,
		c.RadialDistK1, c.RadialDistK2, c.RadialDistK3,
		c.TangentialDistP1, c.TangentialDistP2,
	})
}

func decodeIntrinsics(b []byte, width, height int) (*intrinsics.CameraIntrinsics, error) {
	if b == nil {
		return nil, nil
	}
	values, err := metadata.DecodeFloatSequence(b)
	if err != nil {
		return nil, fmt.Errorf("intrinsics: %w", err)
	}
	w, h := uint32(width), uint32(height)
	if len(values) >= 2 && values[0] > 0 && values[1] > 0 {
		w, h = uint32(values[0]), uint32(values[1])
	}
	c, err := metadata.DecodeIntrinsicsFromFloatArray(values, w, h)
	if err != nil {
		return nil, fmt.Errorf("intrinsics: %w", err)
	}
	return &c, nil
}
