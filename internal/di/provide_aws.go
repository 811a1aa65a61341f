package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/savaki/secrets-rotator/internal/services"
)

func ProvideAWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

func ProvideDynamoDB(config aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(config)
}

// ProvideSecretsManagerClient honors SECRETS_MANAGER_ENDPOINT, used when the
// function reaches Secrets Manager through a VPC endpoint.
func ProvideSecretsManagerClient(awsConfig aws.Config, config *services.Config) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(awsConfig, func(o *secretsmanager.Options) {
		if config.SecretsManagerEndpoint != "" {
			o.BaseEndpoint = aws.String(config.SecretsManagerEndpoint)
		}
	})
}
