package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savaki/secrets-rotator/internal/dao/historydao"
	rerrors "github.com/savaki/secrets-rotator/internal/errors"
	"github.com/savaki/secrets-rotator/internal/rotation"
)

type mockHistoryWriter struct {
	inputs []historydao.CreateInput
}

func (m *mockHistoryWriter) Create(_ context.Context, input historydao.CreateInput) (*historydao.Record, error) {
	m.inputs = append(m.inputs, input)
	return &historydao.Record{PK: historydao.NewPK(input.SecretID)}, nil
}

func TestHistoryRecorder(t *testing.T) {
	writer := &mockHistoryWriter{}
	recorder := NewHistoryRecorder(writer)
	at := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	err := recorder.Record(testContext(), rotation.Event{
		SecretID: secretID,
		Token:    "token",
		Step:     rotation.StepSet,
		Outcome:  rotation.OutcomeFailed,
		Err:      fmt.Errorf("%w: dial tcp: i/o timeout", rerrors.ErrDatabaseUnavailable),
		At:       at,
	})
	require.NoError(t, err)

	err = recorder.Record(testContext(), rotation.Event{
		SecretID: secretID,
		Token:    "token",
		Step:     rotation.StepSet,
		Outcome:  rotation.OutcomeSucceeded,
		At:       at,
	})
	require.NoError(t, err)

	require.Len(t, writer.inputs, 2)
	assert.Equal(t, "setSecret", writer.inputs[0].Step)
	assert.Equal(t, "FAILED", writer.inputs[0].Outcome)
	assert.Equal(t, "DatabaseUnavailableError", writer.inputs[0].ErrorKind)
	assert.Contains(t, writer.inputs[0].ErrorMsg, "i/o timeout")
	assert.Equal(t, at, writer.inputs[0].At)

	assert.Empty(t, writer.inputs[1].ErrorKind)
	assert.Empty(t, writer.inputs[1].ErrorMsg)
}
