package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation.
// Suitable for tests and single-process deployments; all guarantees of the
// Store contract hold under concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[uuid.UUID]*Record
	signupBonus int64
	now         func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a store granting signupBonus credits to every
// newly created record.
func NewMemoryStore(signupBonus int64, opts ...MemoryStoreOption) *MemoryStore {
	if signupBonus < 0 {
		signupBonus = 0
	}
	s := &MemoryStore{
		records:     make(map[uuid.UUID]*Record),
		signupBonus: signupBonus,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the record, creating it with the signup bonus on
// first access. The write lock makes get-or-create atomic, so concurrent
// first-time reads cannot double-grant the bonus.
func (s *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if rec, ok := s.records[userID]; ok {
		cp := *rec
		s.mu.RUnlock()
		return &cp, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock; another goroutine may have created it.
	if rec, ok := s.records[userID]; ok {
		cp := *rec
		return &cp, nil
	}

	now := s.now().UTC()
	rec := &Record{
		UserID:        userID,
		Plan:          PlanFree,
		CreditBalance: s.signupBonus,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.records[userID] = rec

	cp := *rec
	return &cp, nil
}

// ApplyDelta mutates the record under the store lock with a version check.
func (s *MemoryStore) ApplyDelta(ctx context.Context, userID uuid.UUID, delta Delta, expectedVersion int64) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		// Get-or-create makes a missing record a caller bug, but a stale
		// version error keeps the retry path uniform.
		return nil, ErrConcurrentModification
	}
	if rec.Version != expectedVersion {
		return nil, ErrConcurrentModification
	}
	if rec.CreditBalance+delta.AddCredits < 0 {
		return nil, ErrInsufficientCredits
	}

	rec.CreditBalance += delta.AddCredits
	if delta.SetPlan != "" {
		rec.Plan = delta.SetPlan
		rec.ProExpiresAt = delta.ProExpiresAt
	}
	if delta.Gateway != "" {
		rec.LastGateway = delta.Gateway
	}
	if delta.PaymentStatus != "" {
		rec.PaymentStatus = delta.PaymentStatus
	}
	rec.Version++
	rec.UpdatedAt = s.now().UTC()

	cp := *rec
	return &cp, nil
}
