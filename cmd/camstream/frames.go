package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/camstream/internal/framelog"
)

func newFramesCmd(a *app) *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "List frames recorded in a frame log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := framelog.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No frames recorded.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "SEQ\tSOURCE\tFORMAT\tSIZE\tBYTES\tPOSE\tPROJECTION\tCAPTURED")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%dx%d\t%d\t%s\t%s\t%s\n",
					e.Sequence, e.MetadataSource, e.PixelFormat, e.FrameWidth, e.FrameHeight, e.ByteLength,
					yesNo(e.CameraToWorld != nil), yesNo(e.Projection != nil),
					e.CapturedAt.Local().Format("2006-01-02 15:04:05.000"))
			}
			a.log.Debug().Int("frames", len(entries)).Msg("listed frame log")
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "camstream.db", "SQLite frame log")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum frames to list (0 for all)")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
