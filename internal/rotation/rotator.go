// Package rotation drives a database credential through the four Secrets
// Manager rotation steps. Stage labels on the secret's versions are the only
// durable state; every step can be retried with the same token.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/savaki/secrets-rotator/internal/database"
	rerrors "github.com/savaki/secrets-rotator/internal/errors"
	"github.com/savaki/secrets-rotator/internal/password"
)

type Step string

const (
	StepCreate Step = "createSecret"
	StepSet    Step = "setSecret"
	StepTest   Step = "testSecret"
	StepFinish Step = "finishSecret"
)

// Steps lists the rotation steps in the order Secrets Manager invokes them.
var Steps = []Step{StepCreate, StepSet, StepTest, StepFinish}

// ParseStep accepts the step names sent by Secrets Manager.
func ParseStep(s string) (Step, error) {
	for _, step := range Steps {
		if string(step) == s {
			return step, nil
		}
	}
	return "", fmt.Errorf("%w: %q", rerrors.ErrUnknownStep, s)
}

// Request is one invocation of the rotation function. Token is the version
// id of the pending version and the idempotency key for the rotation.
type Request struct {
	SecretID string
	Token    string
	Step     Step
}

func (r Request) Validate() error {
	switch {
	case r.SecretID == "":
		return fmt.Errorf("%w: secret id is required", rerrors.ErrInvalidRequest)
	case r.Token == "":
		return fmt.Errorf("%w: client request token is required", rerrors.ErrInvalidRequest)
	}
	return nil
}

type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeSkipped   Outcome = "SKIPPED"
	OutcomeFailed    Outcome = "FAILED"
)

// Event describes the result of a single step.
type Event struct {
	SecretID string
	Token    string
	Step     Step
	Outcome  Outcome
	Err      error
	At       time.Time
}

// Recorder receives an Event after every step. Recording is best effort.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Database is the server whose login is being rotated.
type Database interface {
	Ping(ctx context.Context, cred database.Credential) error
	SetPassword(ctx context.Context, admin database.Credential, username, password string) error
}

// Generator produces candidate passwords.
type Generator interface {
	Generate(ctx context.Context, options password.Options) (string, error)
}

type Option func(*Rotator)

func WithRecorder(recorder Recorder) Option {
	return func(r *Rotator) {
		r.recorder = recorder
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Rotator) {
		r.now = now
	}
}

type Rotator struct {
	store     Store
	db        Database
	generator Generator
	options   password.Options
	recorder  Recorder
	now       func() time.Time
}

func New(store Store, db Database, generator Generator, options password.Options, opts ...Option) *Rotator {
	r := &Rotator{
		store:     store,
		db:        db,
		generator: generator,
		options:   options,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle runs req.Step for req.SecretID.
func (r *Rotator) Handle(ctx context.Context, req Request) error {
	logger := zerolog.Ctx(ctx).With().
		Str("secret_id", req.SecretID).
		Str("step", string(req.Step)).
		Str("token", req.Token).
		Logger()
	ctx = logger.WithContext(ctx)

	if err := req.Validate(); err != nil {
		return err
	}

	var (
		outcome Outcome
		err     error
	)
	switch req.Step {
	case StepCreate:
		outcome, err = r.createSecret(ctx, req)
	case StepSet:
		outcome, err = r.setSecret(ctx, req)
	case StepTest:
		outcome, err = r.testSecret(ctx, req)
	case StepFinish:
		outcome, err = r.finishSecret(ctx, req)
	default:
		return fmt.Errorf("%w: %q", rerrors.ErrUnknownStep, req.Step)
	}

	if err != nil {
		outcome = OutcomeFailed
		logger.Error().Err(err).
			Str("kind", rerrors.Kind(err)).
			Bool("retryable", rerrors.Retryable(err)).
			Msg("rotation step failed")
	} else {
		logger.Info().Str("outcome", string(outcome)).Msg("rotation step complete")
	}

	r.record(ctx, Event{
		SecretID: req.SecretID,
		Token:    req.Token,
		Step:     req.Step,
		Outcome:  outcome,
		Err:      err,
		At:       r.now().UTC(),
	})

	return err
}

// RotateAll runs every step in order with a single token, stopping at the
// first failure.
func (r *Rotator) RotateAll(ctx context.Context, secretID, token string) error {
	for _, step := range Steps {
		if err := r.Handle(ctx, Request{SecretID: secretID, Token: token, Step: step}); err != nil {
			return fmt.Errorf("%s failed: %w", step, err)
		}
	}
	return nil
}

// CancelRotation removes AWSPENDING from versionID, abandoning the rotation.
func (r *Rotator) CancelRotation(ctx context.Context, secretID, versionID string) error {
	if err := r.store.MoveStage(ctx, secretID, StagePending, "", versionID); err != nil {
		return fmt.Errorf("failed to remove %s from version %s: %w", StagePending, versionID, err)
	}
	zerolog.Ctx(ctx).Info().
		Str("secret_id", secretID).
		Str("version_id", versionID).
		Msg("rotation cancelled")
	return nil
}

func (r *Rotator) record(ctx context.Context, event Event) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to record rotation history")
	}
}

// tokenVersion returns the version named by the token, or nil when it does
// not exist yet or has no value.
func (r *Rotator) tokenVersion(ctx context.Context, req Request) (*Version, error) {
	v, err := r.store.GetVersion(ctx, req.SecretID, Selector{VersionID: req.Token})
	if errors.Is(err, rerrors.ErrVersionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read version %s: %w", req.Token, err)
	}
	return v, nil
}

func (r *Rotator) current(ctx context.Context, secretID string) (*Version, *SecretValue, error) {
	v, err := r.store.GetVersion(ctx, secretID, Selector{Stage: StageCurrent})
	if errors.Is(err, rerrors.ErrVersionNotFound) {
		return nil, nil, fmt.Errorf("%w: secret has no %s version", rerrors.ErrStagingConflict, StageCurrent)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", StageCurrent, err)
	}

	value, err := ParseSecretValue(v.Value)
	if err != nil {
		return nil, nil, fmt.Errorf("%s version %s: %w", StageCurrent, v.ID, err)
	}
	return v, value, nil
}

// pending returns the token version, which must carry AWSPENDING.
func (r *Rotator) pending(ctx context.Context, req Request) (*Version, *SecretValue, error) {
	v, err := r.store.GetVersion(ctx, req.SecretID, Selector{Stage: StagePending, VersionID: req.Token})
	if errors.Is(err, rerrors.ErrVersionNotFound) {
		return nil, nil, fmt.Errorf("%w: version %s is not %s; run createSecret first", rerrors.ErrStagingConflict, req.Token, StagePending)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", StagePending, err)
	}

	value, err := ParseSecretValue(v.Value)
	if err != nil {
		return nil, nil, fmt.Errorf("%s version %s: %w", StagePending, v.ID, err)
	}
	return v, value, nil
}

func (r *Rotator) createSecret(ctx context.Context, req Request) (Outcome, error) {
	logger := zerolog.Ctx(ctx)

	existing, err := r.tokenVersion(ctx, req)
	if err != nil {
		return "", err
	}
	switch {
	case existing.HasStage(StageCurrent):
		logger.Info().Msg("version is already current")
		return OutcomeSkipped, nil
	case existing.HasStage(StagePending):
		logger.Info().Msg("pending version already created")
		return OutcomeSkipped, nil
	case existing != nil:
		return "", fmt.Errorf("%w: version %s exists with stages %v", rerrors.ErrStagingConflict, existing.ID, existing.Stages)
	}

	current, value, err := r.current(ctx, req.SecretID)
	if err != nil {
		return "", err
	}

	if stale, err := r.store.GetVersion(ctx, req.SecretID, Selector{Stage: StagePending}); err == nil && stale.ID != req.Token {
		logger.Warn().
			Str("version_id", stale.ID).
			Msg("replacing abandoned pending version")
	}

	pw, err := r.generator.Generate(ctx, r.options)
	if err != nil {
		return "", err
	}

	next, err := value.WithPassword(pw)
	if err != nil {
		return "", err
	}

	err = r.store.PutVersion(ctx, req.SecretID, req.Token, next, []string{StagePending})
	if errors.Is(err, rerrors.ErrVersionExists) {
		// a concurrent invocation with the same token got there first
		logger.Info().Msg("pending version created by another invocation")
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to store pending version: %w", err)
	}

	logger.Info().
		Str("version_id", req.Token).
		Str("previous_version_id", current.ID).
		Msg("created pending version")
	return OutcomeSucceeded, nil
}

func (r *Rotator) setSecret(ctx context.Context, req Request) (Outcome, error) {
	logger := zerolog.Ctx(ctx)

	existing, err := r.tokenVersion(ctx, req)
	if err != nil {
		return "", err
	}
	if existing.HasStage(StageCurrent) {
		logger.Info().Msg("version is already current")
		return OutcomeSkipped, nil
	}

	_, pendingValue, err := r.pending(ctx, req)
	if err != nil {
		return "", err
	}
	_, currentValue, err := r.current(ctx, req.SecretID)
	if err != nil {
		return "", err
	}

	target := pendingValue.Credential()
	if !target.SameTarget(currentValue.Credential()) {
		return "", fmt.Errorf("%w: pending credential %s does not match current %s", rerrors.ErrInvalidSecret, target, currentValue.Credential())
	}

	err = r.db.Ping(ctx, target)
	if err == nil {
		logger.Info().Msg("pending credential already accepted by database")
		return OutcomeSkipped, nil
	}
	if !errors.Is(err, rerrors.ErrAuthenticationFailed) {
		return "", err
	}

	_, previousValue, err := r.previous(ctx, req.SecretID)
	if err != nil {
		return "", err
	}

	admins := []database.Credential{currentValue.Credential()}
	if previousValue != nil && previousValue.Credential().SameTarget(target) {
		admins = append(admins, previousValue.Credential())
	}

	for _, admin := range admins {
		err = r.db.SetPassword(ctx, admin, target.Username, target.Password)
		if err == nil {
			logger.Info().Str("admin", admin.String()).Msg("database password updated")
			return OutcomeSucceeded, nil
		}
		if !errors.Is(err, rerrors.ErrAuthenticationFailed) {
			return "", err
		}
		logger.Warn().Err(err).Str("admin", admin.String()).Msg("admin credential rejected")
	}

	return "", fmt.Errorf("%w: no known credential can log in as %s", rerrors.ErrAuthenticationFailed, target)
}

// previous returns AWSPREVIOUS when it exists and parses; a malformed
// previous value is ignored since it is only a fallback.
func (r *Rotator) previous(ctx context.Context, secretID string) (*Version, *SecretValue, error) {
	v, err := r.store.GetVersion(ctx, secretID, Selector{Stage: StagePrevious})
	if errors.Is(err, rerrors.ErrVersionNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", StagePrevious, err)
	}

	value, err := ParseSecretValue(v.Value)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("version_id", v.ID).Msg("ignoring unreadable previous version")
		return nil, nil, nil
	}
	return v, value, nil
}

func (r *Rotator) testSecret(ctx context.Context, req Request) (Outcome, error) {
	logger := zerolog.Ctx(ctx)

	existing, err := r.tokenVersion(ctx, req)
	if err != nil {
		return "", err
	}
	if existing.HasStage(StageCurrent) {
		logger.Info().Msg("version is already current")
		return OutcomeSkipped, nil
	}

	_, pendingValue, err := r.pending(ctx, req)
	if err != nil {
		return "", err
	}

	if err := r.db.Ping(ctx, pendingValue.Credential()); err != nil {
		return "", fmt.Errorf("pending credential failed verification: %w", err)
	}

	logger.Info().Msg("pending credential verified")
	return OutcomeSucceeded, nil
}

func (r *Rotator) finishSecret(ctx context.Context, req Request) (Outcome, error) {
	logger := zerolog.Ctx(ctx)

	current, err := r.store.GetVersion(ctx, req.SecretID, Selector{Stage: StageCurrent})
	if errors.Is(err, rerrors.ErrVersionNotFound) {
		return "", fmt.Errorf("%w: secret has no %s version", rerrors.ErrStagingConflict, StageCurrent)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", StageCurrent, err)
	}

	if current.ID == req.Token {
		if current.HasStage(StagePending) {
			if err := r.store.MoveStage(ctx, req.SecretID, StagePending, "", req.Token); err != nil {
				return "", fmt.Errorf("failed to clear %s: %w", StagePending, err)
			}
		}
		logger.Info().Msg("version is already current")
		return OutcomeSkipped, nil
	}

	if _, _, err := r.pending(ctx, req); err != nil {
		return "", err
	}

	if err := r.store.MoveStage(ctx, req.SecretID, StageCurrent, req.Token, current.ID); err != nil {
		return "", fmt.Errorf("failed to promote version %s: %w", req.Token, err)
	}
	if err := r.store.MoveStage(ctx, req.SecretID, StagePending, "", req.Token); err != nil {
		return "", fmt.Errorf("failed to clear %s: %w", StagePending, err)
	}

	logger.Info().
		Str("version_id", req.Token).
		Str("previous_version_id", current.ID).
		Msg("rotation finished")
	return OutcomeSucceeded, nil
}
