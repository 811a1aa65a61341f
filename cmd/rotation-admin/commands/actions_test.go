package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/dig"

	"github.com/savaki/secrets-rotator/internal/dao/historydao"
	"github.com/savaki/secrets-rotator/internal/database"
	"github.com/savaki/secrets-rotator/internal/di"
	rerrors "github.com/savaki/secrets-rotator/internal/errors"
	"github.com/savaki/secrets-rotator/internal/password"
	"github.com/savaki/secrets-rotator/internal/rotation"
	"github.com/savaki/secrets-rotator/internal/services"
)

const mysqlSecret = `{"username":"admin","password":"s3cret","engine":"mysql","host":"demo.cluster-abc.us-east-1.rds.amazonaws.com","port":3306,"dbClusterIdentifier":"demo-cluster"}`

type mockDatabase struct {
	passwords map[string]string
}

func (m *mockDatabase) Ping(_ context.Context, cred database.Credential) error {
	if m.passwords[cred.Username] != cred.Password {
		return fmt.Errorf("%w: access denied for %s", rerrors.ErrAuthenticationFailed, cred.Username)
	}
	return nil
}

func (m *mockDatabase) SetPassword(ctx context.Context, admin database.Credential, username, pw string) error {
	if err := m.Ping(ctx, admin); err != nil {
		return err
	}
	m.passwords[username] = pw
	return nil
}

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

// withContainer replaces the DI container for the duration of the test.
func withContainer(t *testing.T, providers ...any) {
	t.Helper()

	original := newContainer
	newContainer = func(*cli.Context) (di.Container, error) {
		container := dig.New()
		for _, provider := range providers {
			if err := container.Provide(provider); err != nil {
				return nil, err
			}
		}
		return container, nil
	}
	t.Cleanup(func() { newContainer = original })
}

func withRotator(t *testing.T, store rotation.Store, db rotation.Database) {
	t.Helper()

	rotator := rotation.New(store, db, password.NewLocal(), password.DefaultOptions())
	withContainer(t, func() *rotation.Rotator { return rotator })
}

func runApp(args ...string) (string, error) {
	logger := zerolog.New(io.Discard)

	var buf bytes.Buffer
	app := &cli.App{
		Name:   "rotation-admin",
		Writer: &buf,
		Commands: []*cli.Command{
			RotateCommand(&logger),
			CancelRotationCommand(&logger),
			ConfigCommand(&logger),
		},
	}
	err := app.RunContext(testContext(), append([]string{"rotation-admin"}, args...))
	return buf.String(), err
}

func TestRotateCommand(t *testing.T) {
	store := rotation.NewMemoryStore()
	store.Seed(secretID, "v1", mysqlSecret)
	db := &mockDatabase{passwords: map[string]string{"admin": "s3cret"}}
	withRotator(t, store, db)

	out, err := runApp("rotate", "--secret-id", secretID, "--token", "manual-token-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Rotated "+secretID+" (version manual-token-1)")

	stages := store.Stages(secretID)
	assert.Equal(t, []string{rotation.StageCurrent}, stages["manual-token-1"])
	assert.Equal(t, []string{rotation.StagePrevious}, stages["v1"])

	current, err := store.GetVersion(context.Background(), secretID, rotation.Selector{Stage: rotation.StageCurrent})
	require.NoError(t, err)
	value, err := rotation.ParseSecretValue(current.Value)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", db.passwords["admin"])
	assert.Equal(t, db.passwords["admin"], value.Credential().Password)

	t.Run("generated token", func(t *testing.T) {
		out, err := runApp("rotate", "--secret-id", secretID)
		require.NoError(t, err)
		assert.Contains(t, out, "(version manual-")
	})
}

func TestRotateCommand_MissingSecret(t *testing.T) {
	withRotator(t, rotation.NewMemoryStore(), &mockDatabase{passwords: map[string]string{}})

	_, err := runApp("rotate", "--secret-id", "missing", "--token", "manual-token-1")
	assert.ErrorIs(t, err, rerrors.ErrStagingConflict)
}

func TestCancelRotationCommand(t *testing.T) {
	store := rotation.NewMemoryStore()
	store.Seed(secretID, "v1", mysqlSecret)
	store.BeginRotation(secretID, "abandoned")
	withRotator(t, store, &mockDatabase{passwords: map[string]string{"admin": "s3cret"}})

	out, err := runApp("cancel-rotation", "--secret-id", secretID, "--version-id", "abandoned")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully cancelled pending rotation")

	stages := store.Stages(secretID)
	assert.Empty(t, stages["abandoned"])
	assert.Equal(t, []string{rotation.StageCurrent}, stages["v1"])

	_, err = runApp("cancel-rotation", "--secret-id", secretID)
	assert.Error(t, err, "--version-id is required")
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("PASSWORD_LENGTH", "24")
	t.Setenv("HISTORY_TABLE_NAME", "")
	t.Setenv("SECRETS_MANAGER_ENDPOINT", "")

	store := services.NewEnvParameterStore()
	withContainer(t,
		func() services.ParameterStore { return store },
		func(ps services.ParameterStore) (*services.Config, error) {
			return ps.GetConfig(context.Background())
		},
	)

	out, err := runApp("config", "--key", "PASSWORD_LENGTH")
	require.NoError(t, err)
	assert.Equal(t, "24\n", out)

	out, err = runApp("config")
	require.NoError(t, err)
	assert.Contains(t, out, "Password length:            24")
	assert.Contains(t, out, "History table:              (disabled)")

	out, err = runApp("config", "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "password_length: 24")
	assert.False(t, strings.Contains(out, "history_table"))
}

type mockHistoryReader struct {
	records []historydao.Record
	calls   []string
}

func (m *mockHistoryReader) Find(_ context.Context, id historydao.ID) (*historydao.Record, error) {
	m.calls = append(m.calls, "find:"+id.String())
	for _, r := range m.records {
		if r.GetID() == id {
			record := r
			return &record, nil
		}
	}
	return nil, nil
}

func (m *mockHistoryReader) Query(_ context.Context, secretID string, limit int) ([]historydao.Record, error) {
	m.calls = append(m.calls, fmt.Sprintf("query:%s:%d", secretID, limit))
	return m.records, nil
}

func (m *mockHistoryReader) QueryByToken(_ context.Context, secretID, token string) ([]historydao.Record, error) {
	m.calls = append(m.calls, "token:"+secretID+":"+token)
	return m.records, nil
}

func TestLoadHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("by id", func(t *testing.T) {
		reader := &mockHistoryReader{records: sampleRecords()}
		records, err := loadHistory(ctx, reader, historyQuery{SecretID: secretID, ID: "1"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "createSecret", records[0].Step)
		assert.Equal(t, []string{"find:" + secretID + ":1"}, reader.calls)
	})

	t.Run("unknown id", func(t *testing.T) {
		reader := &mockHistoryReader{records: sampleRecords()}
		_, err := loadHistory(ctx, reader, historyQuery{SecretID: secretID, ID: "nope"})
		assert.Error(t, err)
	})

	t.Run("by token", func(t *testing.T) {
		reader := &mockHistoryReader{records: sampleRecords()}
		_, err := loadHistory(ctx, reader, historyQuery{SecretID: secretID, Token: "manual-abc", Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, []string{"token:" + secretID + ":manual-abc"}, reader.calls)
	})

	t.Run("latest", func(t *testing.T) {
		reader := &mockHistoryReader{records: sampleRecords()}
		records, err := loadHistory(ctx, reader, historyQuery{SecretID: secretID, Limit: 5})
		require.NoError(t, err)
		assert.Len(t, records, 2)
		assert.Equal(t, []string{"query:" + secretID + ":5"}, reader.calls)
	})
}
