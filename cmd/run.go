package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/odeflow/internal/app"
	"github.com/tphakala/odeflow/internal/errors"
)

type runFlags struct {
	rate       float64
	jsonOutput bool
}

func runCommand(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [file...]",
		Short: "Replay recorded detection batches through the rules and exit",
		Long: `Reads JSON-lines detection batches from the given files, or from stdin when
no file or "-" is given, evaluates every batch and waits for queued
deliveries before exiting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.loadSettings()
			if err != nil {
				return err
			}
			a, err := app.New(s, app.WithLogOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			total, replayErr := replayInputs(cmd, a, args, f.rate)

			// Deliveries still queued get the shutdown timeout to finish.
			ctx, cancel := context.WithTimeout(context.Background(), s.API.ShutdownTimeout.Std())
			defer cancel()
			if err := a.Close(ctx); err != nil && replayErr == nil {
				replayErr = err
			}
			if replayErr != nil {
				return replayErr
			}
			return printStats(cmd.OutOrStdout(), total, f.jsonOutput)
		},
	}
	cmd.Flags().Float64Var(&f.rate, "rate", 0, "batches per second, 0 replays as fast as possible")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "print the summary as JSON")
	return cmd
}

func replayInputs(cmd *cobra.Command, a *app.App, paths []string, rate float64) (app.ReplayStats, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	var total app.ReplayStats
	for _, path := range paths {
		stats, err := replayOne(cmd.Context(), cmd, a, path, rate)
		total.Batches += stats.Batches
		total.Frames += stats.Frames
		total.Objects += stats.Objects
		total.Events += stats.Events
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func replayOne(ctx context.Context, cmd *cobra.Command, a *app.App, path string, rate float64) (app.ReplayStats, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return app.ReplayStats{}, errors.New(err).
				Component("cmd").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
		defer file.Close()
		r = file
	}
	stats, err := a.Replay(ctx, r, rate)
	if err != nil {
		return stats, fmt.Errorf("replay %s: %w", path, err)
	}
	return stats, nil
}

func printStats(w io.Writer, stats app.ReplayStats, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(stats)
	}
	_, err := fmt.Fprintf(w, "%d batches, %d frames, %d objects, %d events\n",
		stats.Batches, stats.Frames, stats.Objects, stats.Events)
	return err
}
