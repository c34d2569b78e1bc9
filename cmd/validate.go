package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/odeflow/internal/app"
)

func validateCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and rules without connecting to any sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.loadSettings()
			if err != nil {
				return err
			}
			a, err := app.New(s, app.WithoutSinks(), app.WithLogOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			if err := a.Handler.Validate(); err != nil {
				return err
			}
			info := a.Handler.Info()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: handler %q with %d triggers, %d actions, %d areas\n",
				info.Name, info.Triggers, info.Actions, info.Areas)
			return err
		},
	}
}
