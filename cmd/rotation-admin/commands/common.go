package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/savaki/secrets-rotator/internal/di"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// newContainer is a variable so tests can supply their own dependencies.
var newContainer = func(c *cli.Context) (di.Container, error) {
	container, err := di.New(c.String("env"), di.WithContext(c.Context))
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	return container, nil
}

func secretIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "secret-id",
		Aliases:  []string{"s"},
		Usage:    "Secret ID (name or ARN)",
		Required: true,
		EnvVars:  []string{"SECRET_ID"},
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output format: text, json or yaml",
		Value:   outputText,
	}
}

// encode writes v as JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
