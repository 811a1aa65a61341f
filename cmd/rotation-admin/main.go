package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/savaki/secrets-rotator/cmd/rotation-admin/commands"
	"github.com/savaki/secrets-rotator/internal/di"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "rotation-admin",
		Usage: "Operate database credential rotation in AWS Secrets Manager",
		Description: `Operator tooling for the secrets rotator.

This tool provides commands for:
  - Triggering or cancelling a rotation by hand
  - Inspecting recorded rotation history
  - Checking password generation settings
  - Showing the loaded configuration
  - Printing the connection details held by the current secret`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Environment (dev, stg, or prd); selects SSM configuration and history table",
				Value:   "dev",
				EnvVars: []string{"ENV"},
			},
		},
		Commands: []*cli.Command{
			commands.RotateCommand(&logger),
			commands.CancelRotationCommand(&logger),
			commands.HistoryCommand(&logger),
			commands.PasswordCommand(&logger),
			commands.OutputsCommand(&logger),
			commands.ConfigCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
