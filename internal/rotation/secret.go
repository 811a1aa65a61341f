package rotation

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/savaki/secrets-rotator/internal/database"
	rerrors "github.com/savaki/secrets-rotator/internal/errors"
)

// SecretValue is the JSON document stored in each version, e.g.
//
//	{"username":"admin","password":"...","engine":"mysql","host":"...","port":3306,"dbClusterIdentifier":"..."}
//
// Fields the rotator does not understand are carried over untouched.
type SecretValue struct {
	fields map[string]json.RawMessage
	cred   database.Credential

	ClusterIdentifier string
}

// ParseSecretValue decodes and validates a secret string.
func ParseSecretValue(s string) (*SecretValue, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, fmt.Errorf("%w: secret is not a JSON object: %v", rerrors.ErrInvalidSecret, err)
	}

	var raw struct {
		Username          string      `json:"username"`
		Password          string      `json:"password"`
		Engine            string      `json:"engine"`
		Host              string      `json:"host"`
		Port              json.Number `json:"port"`
		DBName            string      `json:"dbname"`
		ClusterIdentifier string      `json:"dbClusterIdentifier"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", rerrors.ErrInvalidSecret, err)
	}

	engine, err := database.ParseEngine(raw.Engine)
	if err != nil {
		return nil, err
	}

	port := engine.DefaultPort()
	if raw.Port != "" {
		p, err := strconv.Atoi(raw.Port.String())
		if err != nil {
			return nil, fmt.Errorf("%w: port %q is not an integer", rerrors.ErrInvalidSecret, raw.Port)
		}
		port = p
	}

	cred := database.Credential{
		Engine:   engine,
		Host:     raw.Host,
		Port:     port,
		Username: raw.Username,
		Password: raw.Password,
		DBName:   raw.DBName,
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	return &SecretValue{
		fields:            fields,
		cred:              cred,
		ClusterIdentifier: raw.ClusterIdentifier,
	}, nil
}

// Credential returns the database login held by the secret.
func (v *SecretValue) Credential() database.Credential {
	return v.cred
}

// WithPassword returns the JSON encoding of v with only the password replaced.
func (v *SecretValue) WithPassword(password string) (string, error) {
	encoded, err := json.Marshal(password)
	if err != nil {
		return "", fmt.Errorf("failed to encode password: %w", err)
	}

	fields := make(map[string]json.RawMessage, len(v.fields))
	for k, raw := range v.fields {
		fields[k] = raw
	}
	fields["password"] = encoded

	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal secret: %w", err)
	}
	return string(data), nil
}
