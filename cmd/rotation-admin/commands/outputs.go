package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/savaki/secrets-rotator/internal/di"
	"github.com/savaki/secrets-rotator/internal/rotation"
)

// connectionOutputs never includes the password.
type connectionOutputs struct {
	ClusterIdentifier string `json:"db_cluster_identifier,omitempty" yaml:"db_cluster_identifier,omitempty"`
	Engine            string `json:"engine" yaml:"engine"`
	Endpoint          string `json:"endpoint" yaml:"endpoint"`
	Port              int    `json:"port" yaml:"port"`
	Username          string `json:"username" yaml:"username"`
	DBName            string `json:"dbname,omitempty" yaml:"dbname,omitempty"`
	VersionID         string `json:"version_id" yaml:"version_id"`
}

// OutputsCommand prints connection details from the AWSCURRENT version
func OutputsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "outputs",
		Usage: "Print the cluster identifier, endpoint and port held by the current secret",
		Flags: []cli.Flag{
			secretIDFlag(),
			outputFlag(),
		},
		Action: func(c *cli.Context) error {
			container, err := newContainer(c)
			if err != nil {
				return err
			}
			store, err := di.Get[rotation.Store](container)
			if err != nil {
				return err
			}

			secretID := c.String("secret-id")
			outputs, err := loadOutputs(c.Context, store, secretID)
			if err != nil {
				return err
			}

			logger.Debug().Str("secret_id", secretID).Str("version_id", outputs.VersionID).Msg("Read current secret")
			return renderOutputs(c.App.Writer, c.String("output"), outputs)
		},
	}
}

func loadOutputs(ctx context.Context, store rotation.Store, secretID string) (connectionOutputs, error) {
	v, err := store.GetVersion(ctx, secretID, rotation.Selector{Stage: rotation.StageCurrent})
	if err != nil {
		return connectionOutputs{}, err
	}
	value, err := rotation.ParseSecretValue(v.Value)
	if err != nil {
		return connectionOutputs{}, err
	}
	return newConnectionOutputs(v.ID, value), nil
}

func newConnectionOutputs(versionID string, value *rotation.SecretValue) connectionOutputs {
	cred := value.Credential()
	return connectionOutputs{
		ClusterIdentifier: value.ClusterIdentifier,
		Engine:            string(cred.Engine),
		Endpoint:          cred.Host,
		Port:              cred.Port,
		Username:          cred.Username,
		DBName:            cred.DBName,
		VersionID:         versionID,
	}
}

func renderOutputs(w io.Writer, format string, outputs connectionOutputs) error {
	if format != outputText {
		return encode(w, format, outputs)
	}

	if outputs.ClusterIdentifier != "" {
		fmt.Fprintf(w, "DBClusterIdentifier: %s\n", outputs.ClusterIdentifier)
	}
	fmt.Fprintf(w, "Engine:              %s\n", outputs.Engine)
	fmt.Fprintf(w, "Endpoint:            %s\n", outputs.Endpoint)
	fmt.Fprintf(w, "Port:                %d\n", outputs.Port)
	fmt.Fprintf(w, "Username:            %s\n", outputs.Username)
	if outputs.DBName != "" {
		fmt.Fprintf(w, "DBName:              %s\n", outputs.DBName)
	}
	fmt.Fprintf(w, "VersionId:           %s\n", outputs.VersionID)
	return nil
}
