package services

import (
	"context"

	"github.com/savaki/secrets-rotator/internal/dao/historydao"
	rerrors "github.com/savaki/secrets-rotator/internal/errors"
	"github.com/savaki/secrets-rotator/internal/rotation"
)

// HistoryWriter is the write side of historydao.DAO.
type HistoryWriter interface {
	Create(ctx context.Context, input historydao.CreateInput) (*historydao.Record, error)
}

// HistoryRecorder stores rotation step outcomes in DynamoDB.
type HistoryRecorder struct {
	dao HistoryWriter
}

func NewHistoryRecorder(dao HistoryWriter) *HistoryRecorder {
	return &HistoryRecorder{
		dao: dao,
	}
}

func (h *HistoryRecorder) Record(ctx context.Context, event rotation.Event) error {
	input := historydao.CreateInput{
		SecretID: event.SecretID,
		Token:    event.Token,
		Step:     string(event.Step),
		Outcome:  string(event.Outcome),
		At:       event.At,
	}
	if event.Err != nil {
		input.ErrorKind = rerrors.Kind(event.Err)
		input.ErrorMsg = event.Err.Error()
	}

	_, err := h.dao.Create(ctx, input)
	return err
}
