package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"

	"github.com/savaki/secrets-rotator/internal/di"
	"github.com/savaki/secrets-rotator/internal/rotation"
)

// RotateCommand runs a complete rotation outside of the Secrets Manager schedule
func RotateCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "rotate",
		Usage: "Rotate a secret now",
		Description: `Runs createSecret, setSecret, testSecret and finishSecret with one token.

Re-running with the same --token resumes a rotation that stopped part way.

Examples:
  rotation-admin --env prd rotate --secret-id DemoAuroraServerlessMySQLSecret`,
		Flags: []cli.Flag{
			secretIDFlag(),
			&cli.StringFlag{
				Name:    "token",
				Aliases: []string{"t"},
				Usage:   "ClientRequestToken; generated when omitted",
			},
		},
		Action: func(c *cli.Context) error {
			container, err := newContainer(c)
			if err != nil {
				return err
			}
			rotator, err := di.Get[*rotation.Rotator](container)
			if err != nil {
				return err
			}

			secretID := c.String("secret-id")
			token := c.String("token")
			if token == "" {
				token = "manual-" + ksuid.New().String()
			}

			logger.Info().Str("secret_id", secretID).Str("token", token).Msg("Starting rotation")
			if err := rotator.RotateAll(c.Context, secretID, token); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "Rotated %s (version %s)\n", secretID, token)
			return nil
		},
	}
}

// CancelRotationCommand removes AWSPENDING from an abandoned version
func CancelRotationCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "cancel-rotation",
		Usage: "Cancel a pending rotation",
		Flags: []cli.Flag{
			secretIDFlag(),
			&cli.StringFlag{
				Name:     "version-id",
				Aliases:  []string{"v"},
				Usage:    "Version ID holding AWSPENDING",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			container, err := newContainer(c)
			if err != nil {
				return err
			}
			rotator, err := di.Get[*rotation.Rotator](container)
			if err != nil {
				return err
			}

			secretID, versionID := c.String("secret-id"), c.String("version-id")
			if err := rotator.CancelRotation(c.Context, secretID, versionID); err != nil {
				return err
			}

			logger.Info().Str("secret_id", secretID).Str("version_id", versionID).Msg("Cancelled rotation")
			fmt.Fprintln(c.App.Writer, "Successfully cancelled pending rotation")
			return nil
		},
	}
}
