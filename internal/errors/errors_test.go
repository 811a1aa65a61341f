package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "database unavailable", err: fmt.Errorf("setSecret: %w", ErrDatabaseUnavailable), want: true},
		{name: "staging conflict", err: fmt.Errorf("setSecret: %w", ErrStagingConflict), want: false},
		{name: "generation", err: ErrCredentialGeneration, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "CredentialGenerationError", Kind(fmt.Errorf("x: %w", ErrCredentialGeneration)))
	assert.Equal(t, "DatabaseUnavailableError", Kind(fmt.Errorf("x: %w", ErrDatabaseUnavailable)))
	assert.Equal(t, "StagingConflictError", Kind(fmt.Errorf("x: %w", ErrStagingConflict)))
	assert.Equal(t, "AuthenticationError", Kind(ErrAuthenticationFailed))
	assert.Equal(t, "Error", Kind(errors.New("boom")))
}
