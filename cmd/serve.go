package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/odeflow/internal/api"
	"github.com/tphakala/odeflow/internal/app"
	"github.com/tphakala/odeflow/internal/errors"
	"github.com/tphakala/odeflow/internal/logger"
)

type serveFlags struct {
	input string
	rate  float64
}

func serveCommand(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and event log maintenance until interrupted",
		Long: `Starts the HTTP control API and the event log pruner. With --input, detection
batches are replayed from the file (or stdin for "-") while serving; the
server keeps running after the input ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.loadSettings()
			if err != nil {
				return err
			}
			a, err := app.New(s, app.WithLogOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			return serve(cmd, a, f)
		},
	}
	cmd.Flags().StringVar(&f.input, "input", "", `JSON-lines detection batches to replay, "-" for stdin`)
	cmd.Flags().Float64Var(&f.rate, "rate", 0, "batches per second for --input, 0 replays as fast as possible")
	return cmd
}

func serve(cmd *cobra.Command, a *app.App, f *serveFlags) error {
	s := a.Settings
	log := a.Log
	g, ctx := errgroup.WithContext(cmd.Context())

	if s.API.Enabled {
		opts := []api.Option{api.WithLogger(log.Module("api"))}
		if a.History != nil {
			opts = append(opts, api.WithHistory(a.History))
		}
		if a.Registry != nil {
			opts = append(opts, api.WithMetrics(a.Registry))
		}
		srv := api.New(a.Handler, opts...)
		g.Go(func() error {
			return srv.Run(ctx, s.API.Listen, s.API.ShutdownTimeout.Std())
		})
	}
	if a.Pruner != nil {
		g.Go(func() error { return a.Pruner.Run(ctx) })
	}
	if f.input != "" {
		g.Go(func() error {
			_, err := replayOne(ctx, cmd, a, f.input, f.rate)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	log.Info("odeflow serving",
		logger.String("handler", a.Handler.Name()),
		logger.Bool("api", s.API.Enabled),
		logger.Int("pid", os.Getpid()))

	// Nothing to supervise means waiting for the signal.
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), s.API.ShutdownTimeout.Std())
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		log.Warn("shutdown incomplete", logger.Error(err))
	}
	log.Info("odeflow stopped")
	return runErr
}
