package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/secrets-rotator/internal/di"
	"github.com/savaki/secrets-rotator/internal/password"
	"github.com/savaki/secrets-rotator/internal/rotation"
	"github.com/savaki/secrets-rotator/internal/services"
)

// PasswordCommand checks the configured password settings
func PasswordCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "password",
		Usage: "Validate password settings and print sample passwords",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Generate locally instead of calling GetRandomPassword",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"c"},
				Usage:   "Number of samples",
				Value:   1,
			},
		},
		Action: func(c *cli.Context) error {
			container, err := newContainer(c)
			if err != nil {
				return err
			}
			config, err := di.Get[*services.Config](container)
			if err != nil {
				return err
			}

			var generator rotation.Generator = password.NewLocal()
			if !c.Bool("local") {
				if generator, err = di.Get[rotation.Generator](container); err != nil {
					return err
				}
			}

			fmt.Fprintln(c.App.Writer, describeOptions(config.Password))
			for i := 0; i < c.Int("count"); i++ {
				pw, err := generator.Generate(c.Context, config.Password)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, pw)
			}

			logger.Debug().Bool("local", c.Bool("local")).Msg("Generated sample passwords")
			return nil
		},
	}
}

func describeOptions(opts password.Options) string {
	return fmt.Sprintf("length=%d alphabet=%d characters require_each_included_type=%t excluded=%q",
		opts.Length,
		len(opts.Alphabet()),
		opts.RequireEachIncludedType,
		opts.ExcludeCharacters,
	)
}
