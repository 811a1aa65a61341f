package di

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"

	rerrors "github.com/savaki/secrets-rotator/internal/errors"
	"github.com/savaki/secrets-rotator/internal/rotation"
	"github.com/savaki/secrets-rotator/internal/services"
)

type clock struct {
	Name string
}

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

// isolate keeps the AWS SDK and configuration away from the host's settings.
func isolate(t *testing.T) {
	t.Helper()

	missing := filepath.Join(t.TempDir(), "missing")
	t.Setenv("AWS_CONFIG_FILE", missing)
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", missing)
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("USE_SSM", "")
	t.Setenv("HISTORY_TABLE_NAME", "")
	t.Setenv("SECRETS_MANAGER_ENDPOINT", "")
}

func TestNew_ProvidesEnvironmentAndContext(t *testing.T) {
	ctx := testContext()
	container, err := New("test-env", WithContext(ctx))
	require.NoError(t, err)

	err = container.Invoke(func(env string, got context.Context) {
		assert.Equal(t, "test-env", env)
		assert.Equal(t, ctx, got)
	})
	require.NoError(t, err)
}

func TestNew_DuplicateProvider(t *testing.T) {
	_, err := New("dev",
		WithProviders(
			func() *clock { return &clock{Name: "a"} },
			func() *clock { return &clock{Name: "b"} },
		),
	)
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	container, err := New("dev", WithProviders(func() *clock { return &clock{Name: "utc"} }))
	require.NoError(t, err)

	got, err := Get[*clock](container)
	require.NoError(t, err)
	assert.Equal(t, "utc", got.Name)
	assert.Equal(t, "utc", MustGet[*clock](container).Name)

	type missing struct{}
	_, err = Get[*missing](container)
	assert.Error(t, err)
	assert.Panics(t, func() { MustGet[*missing](container) })
}

func TestCore_Config(t *testing.T) {
	isolate(t)
	t.Setenv("PASSWORD_LENGTH", "24")

	container, err := New("test", WithContext(testContext()))
	require.NoError(t, err)

	config := MustGet[*services.Config](container)
	assert.Equal(t, 24, config.Password.Length)

	assert.Nil(t, MustGet[rotation.Recorder](container), "history is off without a table name")
	assert.NotNil(t, MustGet[*rotation.Rotator](container))
	assert.IsType(t, &services.SecretsManagerStore{}, MustGet[rotation.Store](container))
}

func TestCore_LambdaEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "127.0.0.1:9001")
	t.Setenv("EXCLUDE_CHARACTERS", "/@\"'\\")
	t.Setenv("EXCLUDE_LOWERCASE", "false")
	t.Setenv("EXCLUDE_NUMBERS", "false")
	t.Setenv("EXCLUDE_PUNCTUATION", "true")
	t.Setenv("EXCLUDE_UPPERCASE", "false")
	t.Setenv("PASSWORD_LENGTH", "24")
	t.Setenv("REQUIRE_EACH_INCLUDED_TYPE", "true")
	t.Setenv("SECRETS_MANAGER_ENDPOINT", "https://secretsmanager.us-east-1.amazonaws.com")

	container, err := New("dev", WithContext(testContext()))
	require.NoError(t, err)

	assert.IsType(t, &services.EnvParameterStore{}, MustGet[services.ParameterStore](container))

	config := MustGet[*services.Config](container)
	assert.Equal(t, 24, config.Password.Length)
	assert.True(t, config.Password.ExcludePunctuation)
	assert.True(t, config.Password.RequireEachIncludedType)
	assert.Equal(t, "https://secretsmanager.us-east-1.amazonaws.com", config.SecretsManagerEndpoint)
	assert.NotNil(t, MustGet[*rotation.Rotator](container))
}

func TestCore_UseSSM(t *testing.T) {
	isolate(t)
	t.Setenv("USE_SSM", "true")

	container, err := New("dev", WithContext(testContext()))
	require.NoError(t, err)

	assert.IsType(t, &services.SSMParameterStore{}, MustGet[services.ParameterStore](container))
}

func TestCore_HistoryEnabled(t *testing.T) {
	isolate(t)
	t.Setenv("HISTORY_TABLE_NAME", "rotation-history")

	container, err := New("test", WithContext(testContext()))
	require.NoError(t, err)

	assert.IsType(t, &services.HistoryRecorder{}, MustGet[rotation.Recorder](container))
}

func TestCore_InvalidConfig(t *testing.T) {
	isolate(t)
	t.Setenv("PASSWORD_LENGTH", "2")

	container, err := New("test", WithContext(testContext()))
	require.NoError(t, err)

	_, err = Get[*rotation.Rotator](container)
	require.Error(t, err)
	assert.ErrorIs(t, dig.RootCause(err), rerrors.ErrInvalidConfig)
}

func TestProvideLogger(t *testing.T) {
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "")
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, zerolog.DebugLevel, ProvideLogger().GetLevel())

	t.Setenv("LOG_LEVEL", "nonsense")
	assert.Equal(t, zerolog.InfoLevel, ProvideLogger().GetLevel())
}
