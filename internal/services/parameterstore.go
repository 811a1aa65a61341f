package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/savaki/secrets-rotator/internal/database"
	rerrors "github.com/savaki/secrets-rotator/internal/errors"
	"github.com/savaki/secrets-rotator/internal/password"
)

// Configuration keys. The environment store reads them as-is; the SSM store
// reads /{env}/secrets-rotator/{key in lower-kebab-case}.
const (
	KeyExcludeCharacters       = "EXCLUDE_CHARACTERS"
	KeyExcludeLowercase        = "EXCLUDE_LOWERCASE"
	KeyExcludeNumbers          = "EXCLUDE_NUMBERS"
	KeyExcludePunctuation      = "EXCLUDE_PUNCTUATION"
	KeyExcludeUppercase        = "EXCLUDE_UPPERCASE"
	KeyPasswordLength          = "PASSWORD_LENGTH"
	KeyRequireEachIncludedType = "REQUIRE_EACH_INCLUDED_TYPE"
	KeySecretsManagerEndpoint  = "SECRETS_MANAGER_ENDPOINT"
	KeyHistoryTableName        = "HISTORY_TABLE_NAME"
	KeyConnectTimeout          = "DB_CONNECT_TIMEOUT"
)

// NoExcludedCharacters is the SSM value for an empty EXCLUDE_CHARACTERS;
// Parameter Store does not accept empty values.
const NoExcludedCharacters = "none"

var configKeys = []string{
	KeyExcludeCharacters,
	KeyExcludeLowercase,
	KeyExcludeNumbers,
	KeyExcludePunctuation,
	KeyExcludeUppercase,
	KeyPasswordLength,
	KeyRequireEachIncludedType,
	KeySecretsManagerEndpoint,
	KeyHistoryTableName,
	KeyConnectTimeout,
}

// Config holds the rotation function's settings.
type Config struct {
	Password               password.Options
	SecretsManagerEndpoint string
	HistoryTable           string
	ConnectTimeout         time.Duration
}

// Validate runs once at startup so bad settings fail before any rotation.
func (c *Config) Validate() error {
	if err := c.Password.Validate(); err != nil {
		return fmt.Errorf("%w: %w", rerrors.ErrInvalidConfig, err)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: %s must be positive", rerrors.ErrInvalidConfig, KeyConnectTimeout)
	}
	if c.SecretsManagerEndpoint != "" && !strings.HasPrefix(c.SecretsManagerEndpoint, "https://") && !strings.HasPrefix(c.SecretsManagerEndpoint, "http://") {
		return fmt.Errorf("%w: %s must be a URL, got %q", rerrors.ErrInvalidConfig, KeySecretsManagerEndpoint, c.SecretsManagerEndpoint)
	}
	return nil
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by key
	GetParameter(ctx context.Context, key string) (string, error)

	// GetConfig loads the complete configuration
	GetConfig(ctx context.Context) (*Config, error)
}

// SSMAPI is the subset of *ssm.Client used for configuration.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client SSMAPI
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

func NewSSMParameterStore(client SSMAPI, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

func (s *SSMParameterStore) path() string {
	return fmt.Sprintf("/%s/secrets-rotator/", s.env)
}

func (s *SSMParameterStore) name(key string) string {
	return s.path() + strings.ToLower(strings.ReplaceAll(key, "_", "-"))
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	name := s.name(key)
	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := fromSSM(key, *result.Parameter.Value)

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()

	return value, nil
}

// GetConfig loads every parameter under /{env}/secrets-rotator/.
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	byName := make(map[string]string, len(configKeys))
	for _, key := range configKeys {
		byName[s.name(key)] = key
	}

	values := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(s.path()),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", s.path(), err)
		}
		for _, param := range page.Parameters {
			if param.Name == nil || param.Value == nil {
				continue
			}
			key, ok := byName[*param.Name]
			if !ok {
				continue
			}
			values[key] = fromSSM(key, *param.Value)
		}
	}

	s.mu.Lock()
	for k, v := range values {
		s.cache[k] = v
	}
	s.mu.Unlock()

	return parseConfig(values)
}

func fromSSM(key, value string) string {
	if key == KeyExcludeCharacters && value == NoExcludedCharacters {
		return ""
	}
	return value
}

// EnvParameterStore implements ParameterStore using environment variables,
// the way the rotation Lambda is configured when SSM is disabled.
type EnvParameterStore struct {
	lookup func(string) (string, bool)
}

func NewEnvParameterStore() *EnvParameterStore {
	return &EnvParameterStore{
		lookup: os.LookupEnv,
	}
}

func (e *EnvParameterStore) GetParameter(_ context.Context, key string) (string, error) {
	value, _ := e.lookup(key)
	return value, nil
}

func (e *EnvParameterStore) GetConfig(_ context.Context) (*Config, error) {
	values := make(map[string]string)
	for _, key := range configKeys {
		if value, ok := e.lookup(key); ok {
			values[key] = value
		}
	}
	return parseConfig(values)
}

// parseConfig applies defaults for missing keys. A present but empty
// EXCLUDE_CHARACTERS means exclude nothing.
func parseConfig(values map[string]string) (*Config, error) {
	config := &Config{
		Password:               password.DefaultOptions(),
		SecretsManagerEndpoint: values[KeySecretsManagerEndpoint],
		HistoryTable:           values[KeyHistoryTableName],
		ConnectTimeout:         database.DefaultConnectTimeout,
	}

	if v, ok := values[KeyExcludeCharacters]; ok {
		config.Password.ExcludeCharacters = v
	}

	flags := []struct {
		key    string
		target *bool
	}{
		{KeyExcludeLowercase, &config.Password.ExcludeLowercase},
		{KeyExcludeNumbers, &config.Password.ExcludeNumbers},
		{KeyExcludePunctuation, &config.Password.ExcludePunctuation},
		{KeyExcludeUppercase, &config.Password.ExcludeUppercase},
		{KeyRequireEachIncludedType, &config.Password.RequireEachIncludedType},
	}
	for _, flag := range flags {
		v := strings.TrimSpace(values[flag.key])
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a boolean", rerrors.ErrInvalidConfig, flag.key, v)
		}
		*flag.target = b
	}

	if v := strings.TrimSpace(values[KeyPasswordLength]); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not an integer", rerrors.ErrInvalidConfig, KeyPasswordLength, v)
		}
		config.Password.Length = n
	}

	if v := strings.TrimSpace(values[KeyConnectTimeout]); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a duration", rerrors.ErrInvalidConfig, KeyConnectTimeout, v)
		}
		config.ConnectTimeout = d
	}

	return config, nil
}
