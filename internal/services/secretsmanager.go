package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	rerrors "github.com/savaki/secrets-rotator/internal/errors"
	"github.com/savaki/secrets-rotator/internal/password"
	"github.com/savaki/secrets-rotator/internal/rotation"
)

// SecretsManagerAPI is the subset of *secretsmanager.Client the rotator uses.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
	GetRandomPassword(ctx context.Context, params *secretsmanager.GetRandomPasswordInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetRandomPasswordOutput, error)
}

// SecretsManagerStore implements rotation.Store on AWS Secrets Manager.
type SecretsManagerStore struct {
	client SecretsManagerAPI
}

func NewSecretsManagerStore(client SecretsManagerAPI) *SecretsManagerStore {
	return &SecretsManagerStore{
		client: client,
	}
}

func (s *SecretsManagerStore) GetVersion(ctx context.Context, secretID string, sel rotation.Selector) (*rotation.Version, error) {
	if sel.Stage == "" && sel.VersionID == "" {
		return nil, fmt.Errorf("%w: selector needs a stage or a version id", rerrors.ErrInvalidRequest)
	}

	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	}
	if sel.Stage != "" {
		input.VersionStage = aws.String(sel.Stage)
	}
	if sel.VersionID != "" {
		input.VersionId = aws.String(sel.VersionID)
	}

	result, err := s.client.GetSecretValue(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s %+v: %w", secretID, sel, classify(err))
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("%w: secret %s has no string value", rerrors.ErrInvalidSecret, secretID)
	}

	return &rotation.Version{
		ID:     aws.ToString(result.VersionId),
		Stages: result.VersionStages,
		Value:  *result.SecretString,
	}, nil
}

func (s *SecretsManagerStore) PutVersion(ctx context.Context, secretID, versionID, value string, stages []string) error {
	_, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(secretID),
		ClientRequestToken: aws.String(versionID),
		SecretString:       aws.String(value),
		VersionStages:      stages,
	})
	if err != nil {
		return fmt.Errorf("failed to put secret %s version %s: %w", secretID, versionID, classify(err))
	}
	return nil
}

func (s *SecretsManagerStore) MoveStage(ctx context.Context, secretID, stage, toVersionID, fromVersionID string) error {
	input := &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(stage),
	}
	if toVersionID != "" {
		input.MoveToVersionId = aws.String(toVersionID)
	}
	if fromVersionID != "" {
		input.RemoveFromVersionId = aws.String(fromVersionID)
	}

	if _, err := s.client.UpdateSecretVersionStage(ctx, input); err != nil {
		return fmt.Errorf("failed to move %s on secret %s: %w", stage, secretID, classify(err))
	}

	zerolog.Ctx(ctx).Debug().
		Str("secret_id", secretID).
		Str("stage", stage).
		Str("to_version_id", toVersionID).
		Str("from_version_id", fromVersionID).
		Msg("moved stage label")
	return nil
}

// RandomPasswordGenerator asks Secrets Manager for passwords.
type RandomPasswordGenerator struct {
	client SecretsManagerAPI
}

func NewRandomPasswordGenerator(client SecretsManagerAPI) *RandomPasswordGenerator {
	return &RandomPasswordGenerator{
		client: client,
	}
}

func (g *RandomPasswordGenerator) Generate(ctx context.Context, opts password.Options) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	input := &secretsmanager.GetRandomPasswordInput{
		ExcludeLowercase:        aws.Bool(opts.ExcludeLowercase),
		ExcludeNumbers:          aws.Bool(opts.ExcludeNumbers),
		ExcludePunctuation:      aws.Bool(opts.ExcludePunctuation),
		ExcludeUppercase:        aws.Bool(opts.ExcludeUppercase),
		IncludeSpace:            aws.Bool(false),
		PasswordLength:          aws.Int64(int64(opts.Length)),
		RequireEachIncludedType: aws.Bool(opts.RequireEachIncludedType),
	}
	if opts.ExcludeCharacters != "" {
		input.ExcludeCharacters = aws.String(opts.ExcludeCharacters)
	}

	result, err := g.client.GetRandomPassword(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidParameterException" {
			return "", fmt.Errorf("%w: %w", rerrors.ErrCredentialGeneration, err)
		}
		return "", fmt.Errorf("failed to get random password: %w", err)
	}

	pw := aws.ToString(result.RandomPassword)
	if err := opts.Check(pw); err != nil {
		return "", fmt.Errorf("random password rejected: %w", err)
	}
	return pw, nil
}

// classify maps Secrets Manager API errors onto rotation errors.
func classify(err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", rerrors.ErrVersionNotFound, err)
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.ErrorCode() {
	case "ResourceExistsException":
		return fmt.Errorf("%w: %w", rerrors.ErrVersionExists, err)
	case "InvalidParameterException", "InvalidRequestException":
		return fmt.Errorf("%w: %w", rerrors.ErrStagingConflict, err)
	default:
		return err
	}
}
