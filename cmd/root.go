// Package cmd implements the odeflow command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/odeflow/internal/conf"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type globalFlags struct {
	configPath string
	logLevel   string
}

// loadSettings reads the configuration and applies command-line overrides.
func (g *globalFlags) loadSettings() (*conf.Settings, error) {
	s, err := conf.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		s.Log.Level = g.logLevel
	}
	return s, nil
}

// RootCommand builds the command tree.
func RootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "odeflow",
		Short:         "Object detection event rules engine",
		Long:          "odeflow evaluates trigger rules against object detection results and dispatches actions when they fire.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to the configuration file (default: ./odeflow.yaml or /etc/odeflow/odeflow.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		runCommand(g),
		serveCommand(g),
		validateCommand(g),
	)
	return root
}

// Execute runs the root command with SIGINT and SIGTERM cancelling its
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RootCommand().ExecuteContext(ctx)
}
