package rotation

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	rerrors "github.com/savaki/secrets-rotator/internal/errors"
)

type memVersion struct {
	value  string
	stages []string
	seq    int
}

type memSecret struct {
	versions map[string]*memVersion
	seq      int
}

// MemoryStore is an in-process Store that follows Secrets Manager's staging
// rules: a label names at most one version, and moving AWSCURRENT leaves
// AWSPREVIOUS on the version that held it.
type MemoryStore struct {
	mu      sync.Mutex
	secrets map[string]*memSecret
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets: make(map[string]*memSecret),
	}
}

// Seed creates versionID labeled AWSCURRENT, as CreateSecret would.
func (m *MemoryStore) Seed(secretID, versionID, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.secret(secretID)
	s.seq++
	s.versions[versionID] = &memVersion{value: value, seq: s.seq}
	m.attach(s, versionID, StageCurrent)
}

// BeginRotation records an empty version labeled AWSPENDING, the way
// RotateSecret does before it invokes createSecret.
func (m *MemoryStore) BeginRotation(secretID, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.secret(secretID)
	if _, ok := s.versions[token]; !ok {
		s.seq++
		s.versions[token] = &memVersion{seq: s.seq}
	}
	m.attach(s, token, StagePending)
}

// Stages returns a copy of the version id to stage labels table.
func (m *MemoryStore) Stages(secretID string) map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string][]string{}
	s, ok := m.secrets[secretID]
	if !ok {
		return out
	}
	for id, v := range s.versions {
		stages := append([]string{}, v.stages...)
		sort.Strings(stages)
		out[id] = stages
	}
	return out
}

// VersionCount returns how many versions carry a value.
func (m *MemoryStore) VersionCount(secretID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	if s, ok := m.secrets[secretID]; ok {
		for _, v := range s.versions {
			if v.value != "" {
				n++
			}
		}
	}
	return n
}

func (m *MemoryStore) GetVersion(_ context.Context, secretID string, sel Selector) (*Version, error) {
	if sel.Stage == "" && sel.VersionID == "" {
		return nil, fmt.Errorf("%w: selector needs a stage or a version id", rerrors.ErrInvalidRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.secrets[secretID]
	if !ok {
		return nil, fmt.Errorf("%w: secret %s", rerrors.ErrVersionNotFound, secretID)
	}

	id := sel.VersionID
	if id == "" {
		id = m.holder(s, sel.Stage)
	}

	v, ok := s.versions[id]
	if !ok || v.value == "" {
		return nil, fmt.Errorf("%w: secret %s %+v", rerrors.ErrVersionNotFound, secretID, sel)
	}
	if sel.Stage != "" && !slices.Contains(v.stages, sel.Stage) {
		return nil, fmt.Errorf("%w: secret %s %+v", rerrors.ErrVersionNotFound, secretID, sel)
	}

	return &Version{
		ID:     id,
		Stages: slices.Clone(v.stages),
		Value:  v.value,
	}, nil
}

func (m *MemoryStore) PutVersion(_ context.Context, secretID, versionID, value string, stages []string) error {
	if versionID == "" || value == "" {
		return fmt.Errorf("%w: version id and value are required", rerrors.ErrInvalidRequest)
	}
	if len(stages) == 0 {
		stages = []string{StageCurrent}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.secrets[secretID]
	if !ok {
		return fmt.Errorf("%w: secret %s", rerrors.ErrVersionNotFound, secretID)
	}

	v, ok := s.versions[versionID]
	switch {
	case ok && v.value == value:
		return nil
	case ok && v.value != "":
		return fmt.Errorf("%w: secret %s version %s", rerrors.ErrVersionExists, secretID, versionID)
	case ok:
		v.value = value
	default:
		s.seq++
		s.versions[versionID] = &memVersion{value: value, seq: s.seq}
	}

	for _, stage := range stages {
		m.attach(s, versionID, stage)
	}
	return nil
}

func (m *MemoryStore) MoveStage(_ context.Context, secretID, stage, toVersionID, fromVersionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.secrets[secretID]
	if !ok {
		return fmt.Errorf("%w: secret %s", rerrors.ErrVersionNotFound, secretID)
	}

	holder := m.holder(s, stage)
	if holder != "" && holder != toVersionID && holder != fromVersionID {
		return fmt.Errorf("%w: %s is attached to version %s, not %s", rerrors.ErrStagingConflict, stage, holder, fromVersionID)
	}
	if fromVersionID != "" && holder != fromVersionID {
		return fmt.Errorf("%w: %s is not attached to version %s", rerrors.ErrStagingConflict, stage, fromVersionID)
	}

	if toVersionID == "" {
		if v, ok := s.versions[fromVersionID]; ok {
			v.stages = remove(v.stages, stage)
		}
		return nil
	}

	if _, ok := s.versions[toVersionID]; !ok {
		return fmt.Errorf("%w: secret %s version %s", rerrors.ErrVersionNotFound, secretID, toVersionID)
	}
	m.attach(s, toVersionID, stage)
	return nil
}

func (m *MemoryStore) secret(secretID string) *memSecret {
	s, ok := m.secrets[secretID]
	if !ok {
		s = &memSecret{versions: make(map[string]*memVersion)}
		m.secrets[secretID] = s
	}
	return s
}

func (m *MemoryStore) holder(s *memSecret, stage string) string {
	for id, v := range s.versions {
		if slices.Contains(v.stages, stage) {
			return id
		}
	}
	return ""
}

// attach moves stage onto versionID. Caller holds mu.
func (m *MemoryStore) attach(s *memSecret, versionID, stage string) {
	previous := m.holder(s, stage)
	if previous == versionID {
		return
	}
	if previous != "" {
		s.versions[previous].stages = remove(s.versions[previous].stages, stage)
		if stage == StageCurrent {
			m.attach(s, previous, StagePrevious)
		}
	}
	v := s.versions[versionID]
	v.stages = append(v.stages, stage)
}

func remove(stages []string, stage string) []string {
	return slices.DeleteFunc(slices.Clone(stages), func(s string) bool { return s == stage })
}
