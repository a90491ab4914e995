package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-process limiter for development and tests.
type MemoryLimiter struct {
	name         string
	scope        string
	initialQuota int64
	period       time.Duration

	mu       sync.Mutex
	balances map[string]*memoryBalance
}

type memoryBalance struct {
	available int64
	resetAt   time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(name, scope string, initialQuota int64, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		name:         name,
		scope:        scope,
		initialQuota: initialQuota,
		period:       period,
		balances:     make(map[string]*memoryBalance),
	}
}

// Name implements Limiter.
func (m *MemoryLimiter) Name() string { return m.name }

// EnsureAvailable implements Limiter.
func (m *MemoryLimiter) EnsureAvailable(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	subject := subjectFor(m.scope, userID)
	b := m.balance(subject)
	if b.available <= 0 {
		return &ExceededError{Limiter: m.name, Subject: subject, Available: b.available}
	}
	return nil
}

// Consume implements Limiter.
func (m *MemoryLimiter) Consume(_ context.Context, userID string, inputTokens, outputTokens int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balance(subjectFor(m.scope, userID))
	b.available -= inputTokens + outputTokens
	return nil
}

// Available implements Limiter.
func (m *MemoryLimiter) Available(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.balance(subjectFor(m.scope, userID)).available, nil
}

// balance returns the subject's balance, creating or period-resetting it.
// Callers hold the lock.
func (m *MemoryLimiter) balance(subject string) *memoryBalance {
	now := time.Now()
	b, ok := m.balances[subject]
	if !ok || (m.period > 0 && now.After(b.resetAt)) {
		b = &memoryBalance{available: m.initialQuota, resetAt: now.Add(m.period)}
		m.balances[subject] = b
	}
	return b
}
