package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/banshee-data/camstream/internal/camera/replay"
	"github.com/banshee-data/camstream/internal/camera/sample"
	"github.com/banshee-data/camstream/internal/config"
	"github.com/banshee-data/camstream/internal/framelog"
	"github.com/banshee-data/camstream/internal/timeutil"
)

type resolveOptions struct {
	recording  string
	configPath string
	dbPath     string
	source     string
	near, far  float64
	interval   time.Duration
	progress   bool

	// Set from flags that were given explicitly.
	clipSet bool
}

// resolveSummary counts what the run produced.
type resolveSummary struct {
	Frames      int
	Copied      int
	Posed       int
	Projected   int
	Skipped     int
	Unsupported int
}

func newResolveCmd(a *app) *cobra.Command {
	opts := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve <recording.yaml>",
		Short: "Replay a recording and resolve every frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.recording = args[0]
			opts.clipSet = cmd.Flags().Changed("near") || cmd.Flags().Changed("far")
			summary, err := runResolve(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr(), a.log, timeutil.RealClock{})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d frames: %d copied, %d with pose, %d with projection, %d unsupported, %d skipped\n",
				summary.Frames, summary.Copied, summary.Posed, summary.Projected, summary.Unsupported, summary.Skipped)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Resolver config JSON (default: built-in defaults)")
	f.StringVar(&opts.dbPath, "db", "", "Record every frame in this SQLite frame log")
	f.StringVar(&opts.source, "source", "", "Metadata source override (auto, legacy, direct)")
	f.Float64Var(&opts.near, "near", 0, "Near clip distance for derived projections")
	f.Float64Var(&opts.far, "far", 0, "Far clip distance for derived projections")
	f.DurationVar(&opts.interval, "interval", 0, "Pause between frames to mimic the capture rate")
	f.BoolVar(&opts.progress, "progress", true, "Show a progress bar on stderr")
	return cmd
}

func loadConfig(opts *resolveOptions) (*config.ResolverConfig, error) {
	cfg := config.DefaultResolverConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadResolverConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.clipSet {
		near, far := cfg.GetNearClip(), cfg.GetFarClip()
		if opts.near > 0 {
			near = opts.near
		}
		if opts.far > 0 {
			far = opts.far
		}
		cfg = cfg.WithClip(near, far)
	}
	if opts.source != "" {
		cfg = cfg.WithMetadataSource(opts.source)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resolver config: %w", err)
	}
	return cfg, nil
}

func runResolve(ctx context.Context, opts *resolveOptions, out, progressOut io.Writer, log zerolog.Logger, clock timeutil.Clock) (resolveSummary, error) {
	var summary resolveSummary

	cfg, err := loadConfig(opts)
	if err != nil {
		return summary, err
	}

	src, err := replay.Open(opts.recording)
	if err != nil {
		return summary, err
	}
	src.UsePaddedWidths(cfg.GetNV12PaddedWidths())

	resolver, err := sample.NewResolver(sample.ResolverOptions{
		Source:      sample.SelectMetadataSource(src.DeviceGeneration(), cfg.GetMetadataSource()),
		Anchors:     src,
		WorldOrigin: src.WorldOrigin(),
		Config:      cfg,
	})
	if err != nil {
		return summary, err
	}
	log.Info().
		Str("recording", opts.recording).
		Stringer("device", src.DeviceGeneration()).
		Str("source", string(resolver.Source().Kind())).
		Int("frames", src.Len()).
		Msg("replaying")

	var store *framelog.Store
	if opts.dbPath != "" {
		store, err = framelog.Open(opts.dbPath)
		if err != nil {
			return summary, err
		}
		defer store.Close()
		store.SetClock(clock)
	}

	bar := progressbar.NewOptions(src.Len(),
		progressbar.OptionSetDescription("resolving"),
		progressbar.OptionSetWriter(progressOut),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(opts.progress),
	)

	var pixels []byte
	for seq := int64(0); ; seq++ {
		ref, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, err
		}

		s, err := resolver.NewSample(ref)
		if err != nil {
			log.Warn().Err(err).Int64("frame", seq).Msg("skipping frame")
			if err := ref.Release(); err != nil {
				log.Warn().Err(err).Int64("frame", seq).Msg("release frame")
			}
			summary.Skipped++
			_ = bar.Add(1)
			continue
		}

		entry, err := resolveFrame(s, &pixels, &summary)
		if err != nil {
			log.Warn().Err(err).Int64("frame", seq).Msg("skipping frame")
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Int64("frame", seq).Msg("close sample")
			}
			summary.Skipped++
			_ = bar.Add(1)
			continue
		}
		entry.Sequence = seq
		entry.MetadataSource = string(resolver.Source().Kind())
		fmt.Fprintln(out, formatReport(seq, entry))

		if err := s.Close(); err != nil {
			log.Warn().Err(err).Int64("frame", seq).Msg("close sample")
		}
		if store != nil {
			if _, err := store.Record(ctx, entry); err != nil {
				return summary, err
			}
		}
		summary.Frames++
		_ = bar.Add(1)

		if opts.interval > 0 {
			clock.Sleep(opts.interval)
		}
	}
	_ = bar.Finish()
	return summary, nil
}

// resolveFrame copies the pixels into the reused buffer and resolves the
// frame's metadata.
func resolveFrame(s *sample.Sample, pixels *[]byte, summary *resolveSummary) (framelog.Entry, error) {
	entry := framelog.Entry{
		PixelFormat: s.PixelFormat().String(),
		FrameWidth:  s.FrameWidth(),
		FrameHeight: s.FrameHeight(),
		ByteLength:  s.ByteLength(),
	}

	if s.Layout().Supported() {
		n := s.ByteLength()
		if cap(*pixels) < n {
			*pixels = make([]byte, n)
		}
		if err := s.CopyPixelsInto((*pixels)[:n]); err != nil {
			return entry, err
		}
		entry.Copied = true
		summary.Copied++
	} else {
		summary.Unsupported++
	}

	if c, ok := s.Intrinsics(); ok {
		entry.Intrinsics = &c
	}
	if m, ok := s.TryGetCameraToWorld(); ok {
		entry.CameraToWorld = &m
		summary.Posed++
	}
	if m, ok := s.TryGetProjectionMatrix(); ok {
		entry.Projection = &m
		summary.Projected++
	}
	return entry, nil
}

func formatReport(seq int64, e framelog.Entry) string {
	line := fmt.Sprintf("frame %d: %s %dx%d bytes=%d", seq, e.PixelFormat, e.FrameWidth, e.FrameHeight, e.ByteLength)
	if !e.Copied {
		line += " (not copied)"
	}
	if e.Intrinsics != nil {
		line += " intrinsics=" + e.Intrinsics.String()
	}
	if e.CameraToWorld != nil {
		x, y, z := e.CameraToWorld.ApplyPoint(0, 0, 0)
		line += fmt.Sprintf(" position=(%.3f, %.3f, %.3f)", x, y, z)
	} else {
		line += " pose=unavailable"
	}
	if e.Projection != nil {
		line += " projection=ok"
	} else {
		line += " projection=unavailable"
	}
	return line
}
