package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"restack-guard/internal/cache"
)

// Set names used in the backing SetStore.
const (
	SetVoidedCheckouts = "voided_checkouts"
	SetAlertedOverPOs  = "alerted_over_pos"
)

// ErrUnknownSet is returned when a set name is neither dedup set.
var ErrUnknownSet = errors.New("unknown state set")

// ReconciliationState is the dedup state shared by every cycle: the checkout
// IDs already voided and the PO numbers already reported as over-limit with no
// wallet. Both sets only ever grow.
//
// TODO: neither set is cleared when the operational date rolls over; revisit
// if checkout IDs turn out to be reused across days.
type ReconciliationState struct {
	store cache.SetStore
}

// NewReconciliationState wraps a set store.
func NewReconciliationState(store cache.SetStore) *ReconciliationState {
	return &ReconciliationState{store: store}
}

// IsVoided reports whether the checkout ID was already voided.
func (s *ReconciliationState) IsVoided(ctx context.Context, checkoutID string) (bool, error) {
	return s.store.IsMember(ctx, SetVoidedCheckouts, checkoutID)
}

// MarkVoided records a successfully voided checkout ID.
func (s *ReconciliationState) MarkVoided(ctx context.Context, checkoutID string) error {
	return s.store.Add(ctx, SetVoidedCheckouts, checkoutID)
}

// IsAlerted reports whether the PO was already reported as over with no wallet.
func (s *ReconciliationState) IsAlerted(ctx context.Context, poNumber string) (bool, error) {
	return s.store.IsMember(ctx, SetAlertedOverPOs, poNumber)
}

// MarkAlerted records a PO reported as over with no wallet.
func (s *ReconciliationState) MarkAlerted(ctx context.Context, poNumber string) error {
	return s.store.Add(ctx, SetAlertedOverPOs, poNumber)
}

// StateCounts is the size of each dedup set.
type StateCounts struct {
	VoidedCheckouts int64 `json:"voidedCheckouts"`
	AlertedOverPOs  int64 `json:"alertedOverPOs"`
}

// Counts returns the size of both sets.
func (s *ReconciliationState) Counts(ctx context.Context) (StateCounts, error) {
	voided, err := s.store.Count(ctx, SetVoidedCheckouts)
	if err != nil {
		return StateCounts{}, fmt.Errorf("failed to count voided checkouts: %w", err)
	}
	alerted, err := s.store.Count(ctx, SetAlertedOverPOs)
	if err != nil {
		return StateCounts{}, fmt.Errorf("failed to count alerted POs: %w", err)
	}
	return StateCounts{VoidedCheckouts: voided, AlertedOverPOs: alerted}, nil
}

// Members lists one dedup set, sorted.
func (s *ReconciliationState) Members(ctx context.Context, set string) ([]string, error) {
	if set != SetVoidedCheckouts && set != SetAlertedOverPOs {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSet, set)
	}
	members, err := s.store.Members(ctx, set)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", set, err)
	}
	sort.Strings(members)
	return members, nil
}
