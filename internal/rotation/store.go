package rotation

import (
	"context"
	"slices"
)

// Stage labels Secrets Manager attaches to secret versions.
const (
	StageCurrent  = "AWSCURRENT"
	StagePending  = "AWSPENDING"
	StagePrevious = "AWSPREVIOUS"
)

// Version is one value of a secret together with its stage labels.
type Version struct {
	ID     string
	Stages []string
	Value  string
}

func (v *Version) HasStage(stage string) bool {
	return v != nil && slices.Contains(v.Stages, stage)
}

// Selector picks a version by stage, by id, or by both. When both are set
// the version must carry the stage.
type Selector struct {
	Stage     string
	VersionID string
}

// Store is the secret's version table. It is owned by the secret store and
// only ever changed through PutVersion and MoveStage.
type Store interface {
	// GetVersion returns the version matching sel, or ErrVersionNotFound.
	GetVersion(ctx context.Context, secretID string, sel Selector) (*Version, error)

	// PutVersion creates versionID holding value and moves the given stage
	// labels onto it. Repeating the call with the same value is a no-op;
	// a different value fails with ErrVersionExists.
	PutVersion(ctx context.Context, secretID, versionID, value string, stages []string) error

	// MoveStage reassigns stage from fromVersionID to toVersionID in a
	// single step. An empty toVersionID removes the label.
	MoveStage(ctx context.Context, secretID, stage, toVersionID, fromVersionID string) error
}
