package rotation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/secrets-rotator/internal/database"
	rerrors "github.com/savaki/secrets-rotator/internal/errors"
)

func TestParseSecretValue(t *testing.T) {
	value, err := ParseSecretValue(secretJSON("hunter2"))
	require.NoError(t, err)

	cred := value.Credential()
	assert.Equal(t, database.EngineMySQL, cred.Engine)
	assert.Equal(t, "admin", cred.Username)
	assert.Equal(t, "hunter2", cred.Password)
	assert.Equal(t, 3306, cred.Port)
	assert.Equal(t, "demo-cluster", value.ClusterIdentifier)
}

func TestParseSecretValue_Defaults(t *testing.T) {
	value, err := ParseSecretValue(`{"username":"app","password":"pw","engine":"postgres","host":"db.internal"}`)
	require.NoError(t, err)
	assert.Equal(t, 5432, value.Credential().Port)

	value, err = ParseSecretValue(`{"username":"app","password":"pw","host":"db.internal","port":"3307"}`)
	require.NoError(t, err)
	assert.Equal(t, database.EngineMySQL, value.Credential().Engine)
	assert.Equal(t, 3307, value.Credential().Port)
}

func TestParseSecretValue_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":      `username=admin`,
		"array":         `["admin"]`,
		"no host":       `{"username":"admin","password":"pw"}`,
		"no password":   `{"username":"admin","host":"db"}`,
		"bad port":      `{"username":"admin","password":"pw","host":"db","port":3306.5}`,
		"port range":    `{"username":"admin","password":"pw","host":"db","port":70000}`,
		"bad engine":    `{"username":"admin","password":"pw","host":"db","engine":"oracle"}`,
		"port not text": `{"username":"admin","password":"pw","host":"db","port":true}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSecretValue(in)
			assert.ErrorIs(t, err, rerrors.ErrInvalidSecret)
		})
	}
}

func TestSecretValue_WithPassword(t *testing.T) {
	in := `{"username":"admin","password":"old","engine":"mysql","host":"db","port":3306,"dbClusterIdentifier":"demo","owner":{"team":"payments"}}`
	value, err := ParseSecretValue(in)
	require.NoError(t, err)

	out, err := value.WithPassword(`n"ew\pw`)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, `n"ew\pw`, got["password"])
	assert.Equal(t, "demo", got["dbClusterIdentifier"])
	assert.Equal(t, float64(3306), got["port"])
	assert.Equal(t, map[string]any{"team": "payments"}, got["owner"])

	again, err := ParseSecretValue(in)
	require.NoError(t, err)
	assert.Equal(t, "old", again.Credential().Password, "original is not modified")
}
