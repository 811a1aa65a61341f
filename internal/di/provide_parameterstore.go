package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"github.com/savaki/secrets-rotator/internal/services"
)

// ProvideSSMClient provides an SSM client for Parameter Store access.
// Returns nil unless USE_SSM=true; the rotation function normally runs in
// an isolated subnet that can only reach Secrets Manager.
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	if os.Getenv("USE_SSM") != "true" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore reads the function's environment variables unless an
// SSM client was provided
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client, env string) services.ParameterStore {
	logger := zerolog.Ctx(ctx)

	if ssmClient == nil {
		logger.Info().Msg("Using environment variables for configuration")
		return services.NewEnvParameterStore()
	}

	logger.Info().Msg("Using AWS Systems Manager Parameter Store for configuration")
	return services.NewSSMParameterStore(ssmClient, env)
}

// ProvideAppConfig loads and validates configuration. Password settings are
// logged, never secrets.
func ProvideAppConfig(ctx context.Context, store services.ParameterStore) (*services.Config, error) {
	logger := zerolog.Ctx(ctx)

	config, err := store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Int("password_length", config.Password.Length).
		Bool("require_each_included_type", config.Password.RequireEachIncludedType).
		Bool("has_custom_endpoint", config.SecretsManagerEndpoint != "").
		Bool("has_history_table", config.HistoryTable != "").
		Dur("connect_timeout", config.ConnectTimeout).
		Msg("Configuration loaded successfully")

	return config, nil
}
