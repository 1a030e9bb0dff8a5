package coachplan

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It enforces the one-active-row rule
// the same way the database's partial unique index does. Used by tests and
// local runs without Postgres.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []*Plan // insertion order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) FindActivePlans(_ context.Context, coachID uuid.UUID) ([]Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Plan
	for _, p := range m.rows {
		if p.CoachID == coachID && p.Status == StatusActive {
			out = append(out, *p.clone())
		}
	}
	slices.SortStableFunc(out, func(a, b Plan) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return out, nil
}

func (m *MemoryStore) FindLatestTrial(_ context.Context, coachID uuid.UUID) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Plan
	for _, p := range m.rows {
		if p.CoachID != coachID || p.Status != StatusTrial {
			continue
		}
		// later insertion wins ties
		if latest == nil || !p.CreatedAt.Before(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrPlanNotFound
	}
	return latest.clone(), nil
}

func (m *MemoryStore) Insert(_ context.Context, plan Plan) (*Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if plan.Status == StatusActive && m.hasActiveLocked(plan.CoachID, uuid.Nil) {
		return nil, ErrActivePlanExists
	}
	row := plan.clone()
	m.rows = append(m.rows, row)
	return row.clone(), nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, upd StatusUpdate) (*Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := slices.IndexFunc(m.rows, func(p *Plan) bool { return p.ID == id })
	if idx < 0 {
		return nil, ErrPlanNotFound
	}
	row := m.rows[idx]
	if upd.Status == StatusActive && row.Status != StatusActive && m.hasActiveLocked(row.CoachID, row.ID) {
		return nil, ErrActivePlanExists
	}

	row.Status = upd.Status
	if upd.SubscriptionRef != nil {
		row.SubscriptionRef = *upd.SubscriptionRef
	}
	if upd.ActivatedAt != nil {
		t := *upd.ActivatedAt
		row.ActivatedAt = &t
	}
	if !upd.UpdatedAt.IsZero() {
		row.UpdatedAt = upd.UpdatedAt
	}
	return row.clone(), nil
}

func (m *MemoryStore) FindPlanBySubscriptionRef(_ context.Context, ref string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rank := func(p *Plan) int {
		switch p.Status {
		case StatusActive:
			return 2
		case StatusTrial:
			return 1
		}
		return 0
	}

	var best *Plan
	for _, p := range m.rows {
		if p.SubscriptionRef != ref {
			continue
		}
		if best == nil || rank(p) > rank(best) ||
			(rank(p) == rank(best) && !p.CreatedAt.Before(best.CreatedAt)) {
			best = p
		}
	}
	if best == nil {
		return nil, ErrPlanNotFound
	}
	return best.clone(), nil
}

func (m *MemoryStore) FindLatestWithSubscriptionRef(_ context.Context, coachID uuid.UUID) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Plan
	for _, p := range m.rows {
		if p.CoachID != coachID || p.SubscriptionRef == "" || p.ActivatedAt == nil || p.Status == StatusTrial {
			continue
		}
		if latest == nil || !p.ActivatedAt.Before(*latest.ActivatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrPlanNotFound
	}
	return latest.clone(), nil
}

func (m *MemoryStore) FindCoachesDue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, p := range m.rows {
		due := (p.Status == StatusTrial && p.SubscriptionRef == "" && !p.StartedAt.After(now)) ||
			p.IsStaleAt(now)
		if !due {
			continue
		}
		if _, ok := seen[p.CoachID]; ok {
			continue
		}
		seen[p.CoachID] = struct{}{}
		out = append(out, p.CoachID)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Plans returns a copy of every row for the coach in insertion order.
func (m *MemoryStore) Plans(coachID uuid.UUID) []Plan {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Plan
	for _, p := range m.rows {
		if p.CoachID == coachID {
			out = append(out, *p.clone())
		}
	}
	return out
}

func (m *MemoryStore) hasActiveLocked(coachID, except uuid.UUID) bool {
	return slices.ContainsFunc(m.rows, func(p *Plan) bool {
		return p.CoachID == coachID && p.Status == StatusActive && p.ID != except
	})
}
