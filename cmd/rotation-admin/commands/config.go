package commands

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/secrets-rotator/internal/di"
	"github.com/savaki/secrets-rotator/internal/services"
)

type configEntry struct {
	PasswordLength          int    `json:"password_length" yaml:"password_length"`
	ExcludeCharacters       string `json:"exclude_characters" yaml:"exclude_characters"`
	ExcludeLowercase        bool   `json:"exclude_lowercase" yaml:"exclude_lowercase"`
	ExcludeNumbers          bool   `json:"exclude_numbers" yaml:"exclude_numbers"`
	ExcludePunctuation      bool   `json:"exclude_punctuation" yaml:"exclude_punctuation"`
	ExcludeUppercase        bool   `json:"exclude_uppercase" yaml:"exclude_uppercase"`
	RequireEachIncludedType bool   `json:"require_each_included_type" yaml:"require_each_included_type"`
	SecretsManagerEndpoint  string `json:"secrets_manager_endpoint,omitempty" yaml:"secrets_manager_endpoint,omitempty"`
	HistoryTable            string `json:"history_table,omitempty" yaml:"history_table,omitempty"`
	ConnectTimeout          string `json:"connect_timeout" yaml:"connect_timeout"`
}

// ConfigCommand prints the configuration the rotation function would load
func ConfigCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show the loaded rotation configuration",
		Description: `Reads the environment, or SSM Parameter Store when USE_SSM=true.

Examples:
  rotation-admin config
  USE_SSM=true rotation-admin --env prd config --key PASSWORD_LENGTH`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "key",
				Aliases: []string{"k"},
				Usage:   "Print the raw value of a single key, e.g. EXCLUDE_CHARACTERS",
			},
			outputFlag(),
		},
		Action: func(c *cli.Context) error {
			container, err := newContainer(c)
			if err != nil {
				return err
			}

			if key := c.String("key"); key != "" {
				store, err := di.Get[services.ParameterStore](container)
				if err != nil {
					return err
				}
				value, err := store.GetParameter(c.Context, key)
				if err != nil {
					return err
				}
				logger.Debug().Str("key", key).Msg("Loaded parameter")
				_, err = fmt.Fprintln(c.App.Writer, value)
				return err
			}

			config, err := di.Get[*services.Config](container)
			if err != nil {
				return err
			}
			return renderConfig(c.App.Writer, c.String("output"), config)
		},
	}
}

func toConfigEntry(config *services.Config) configEntry {
	return configEntry{
		PasswordLength:          config.Password.Length,
		ExcludeCharacters:       config.Password.ExcludeCharacters,
		ExcludeLowercase:        config.Password.ExcludeLowercase,
		ExcludeNumbers:          config.Password.ExcludeNumbers,
		ExcludePunctuation:      config.Password.ExcludePunctuation,
		ExcludeUppercase:        config.Password.ExcludeUppercase,
		RequireEachIncludedType: config.Password.RequireEachIncludedType,
		SecretsManagerEndpoint:  config.SecretsManagerEndpoint,
		HistoryTable:            config.HistoryTable,
		ConnectTimeout:          config.ConnectTimeout.String(),
	}
}

func renderConfig(w io.Writer, format string, config *services.Config) error {
	entry := toConfigEntry(config)
	if format != outputText {
		return encode(w, format, entry)
	}

	endpoint := entry.SecretsManagerEndpoint
	if endpoint == "" {
		endpoint = "(default)"
	}
	history := entry.HistoryTable
	if history == "" {
		history = "(disabled)"
	}

	fmt.Fprintf(w, "Password length:            %d\n", entry.PasswordLength)
	fmt.Fprintf(w, "Excluded characters:        %q\n", entry.ExcludeCharacters)
	fmt.Fprintf(w, "Exclude lowercase:          %t\n", entry.ExcludeLowercase)
	fmt.Fprintf(w, "Exclude numbers:            %t\n", entry.ExcludeNumbers)
	fmt.Fprintf(w, "Exclude punctuation:        %t\n", entry.ExcludePunctuation)
	fmt.Fprintf(w, "Exclude uppercase:          %t\n", entry.ExcludeUppercase)
	fmt.Fprintf(w, "Require each included type: %t\n", entry.RequireEachIncludedType)
	fmt.Fprintf(w, "Secrets Manager endpoint:   %s\n", endpoint)
	fmt.Fprintf(w, "History table:              %s\n", history)
	fmt.Fprintf(w, "Connect timeout:            %s\n", entry.ConnectTimeout)
	return nil
}
