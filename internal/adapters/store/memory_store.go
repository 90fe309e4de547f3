package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/inboxforge/triage-engine/internal/core"
)

// MemoryStore is an in-memory implementation of the policy, weight and
// aggregate sources for tests and single-process deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	revision   int
	policies   []core.Policy
	weights    map[string]map[string]float64
	aggregates map[string]map[string]float64
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		weights:    make(map[string]map[string]float64),
		aggregates: make(map[string]map[string]float64),
	}
}

// SetPolicies replaces the stored policy set and bumps the revision.
func (s *MemoryStore) SetPolicies(policies []core.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = append([]core.Policy(nil), policies...)
	s.revision++
}

// SetWeights replaces one user's learned feature weights.
func (s *MemoryStore) SetWeights(userID string, weights map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights[userID] = maps.Clone(weights)
}

// SetAggregates replaces one user's rolling category ratios.
func (s *MemoryStore) SetAggregates(userID string, ratios map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates[userID] = maps.Clone(ratios)
}

// Snapshot implements core.PolicySource.
func (s *MemoryStore) Snapshot(ctx context.Context) (core.PolicySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.PolicySnapshot{
		Revision: fmt.Sprintf("mem-%d", s.revision),
		Policies: append([]core.Policy(nil), s.policies...),
	}, nil
}

// Weights implements core.WeightSource.
func (s *MemoryStore) Weights(ctx context.Context, userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.weights[userID]), nil
}

// Aggregates implements core.AggregateSource.
func (s *MemoryStore) Aggregates(ctx context.Context, userID string) (core.AggregateStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.AggregateStats{CategoryRatios: maps.Clone(s.aggregates[userID])}, nil
}

// Close implements the store lifecycle; nothing to release.
func (s *MemoryStore) Close() error {
	return nil
}
