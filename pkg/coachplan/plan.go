package coachplan

import (
	"time"

	"github.com/google/uuid"
)

// PeriodLength is the validity of every plan row.
const PeriodLength = 31 * 24 * time.Hour

// Status of a plan row. A row is retired by moving to expired or cancelled
// and is never deleted.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial" // pending: awaiting payment or scheduled
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTrial, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Plan is one coach's claim to a tier for one period.
type Plan struct {
	ID              uuid.UUID
	CoachID         uuid.UUID
	Tier            Tier
	Status          Status
	StorageLimitGB  float64
	StorageUsedGB   float64
	StartedAt       time.Time
	ExpiresAt       *time.Time
	RenewalCount    int
	SubscriptionRef string // empty when no recurring subscription is attached
	CheckoutURL     string // payer authorization link for a pending payment
	ActivatedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsValidAt reports whether the row governs the coach at now:
// started and not yet expired.
func (p *Plan) IsValidAt(now time.Time) bool {
	if p.StartedAt.After(now) {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// IsStaleAt reports whether an active row has passed its expiry.
func (p *Plan) IsStaleAt(now time.Time) bool {
	return p.Status == StatusActive && p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// IsDueAt reports whether a pending row's start moment has arrived.
func (p *Plan) IsDueAt(now time.Time) bool {
	return p.Status == StatusTrial && !p.StartedAt.After(now)
}

// periodEnd returns start + PeriodLength as a pointer for ExpiresAt.
func periodEnd(start time.Time) *time.Time {
	end := start.Add(PeriodLength)
	return &end
}

func (p *Plan) clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		c.ExpiresAt = &t
	}
	if p.ActivatedAt != nil {
		t := *p.ActivatedAt
		c.ActivatedAt = &t
	}
	return &c
}
