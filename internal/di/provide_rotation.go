package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"

	"github.com/savaki/secrets-rotator/internal/dao/historydao"
	"github.com/savaki/secrets-rotator/internal/database"
	"github.com/savaki/secrets-rotator/internal/rotation"
	"github.com/savaki/secrets-rotator/internal/services"
)

func ProvideStore(client *secretsmanager.Client) rotation.Store {
	return services.NewSecretsManagerStore(client)
}

func ProvideGenerator(client *secretsmanager.Client) rotation.Generator {
	return services.NewRandomPasswordGenerator(client)
}

func ProvideDatabase(config *services.Config) rotation.Database {
	return database.New(config.ConnectTimeout)
}

// ProvideRecorder returns nil unless HISTORY_TABLE_NAME is configured.
func ProvideRecorder(ctx context.Context, config *services.Config, dao *historydao.DAO) rotation.Recorder {
	if config.HistoryTable == "" {
		return nil
	}
	zerolog.Ctx(ctx).Info().Str("table", config.HistoryTable).Msg("Recording rotation history")
	return services.NewHistoryRecorder(dao)
}

func ProvideRotator(
	store rotation.Store,
	db rotation.Database,
	generator rotation.Generator,
	recorder rotation.Recorder,
	config *services.Config,
) *rotation.Rotator {
	var opts []rotation.Option
	if recorder != nil {
		opts = append(opts, rotation.WithRecorder(recorder))
	}
	return rotation.New(store, db, generator, config.Password, opts...)
}
