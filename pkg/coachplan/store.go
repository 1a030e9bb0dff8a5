package coachplan

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists plan rows. Implementations must enforce at most one row
// with StatusActive per coach and report violations as ErrActivePlanExists.
type Store interface {
	// FindActivePlans returns every row with StatusActive for the coach,
	// newest StartedAt first. Normally zero or one row.
	FindActivePlans(ctx context.Context, coachID uuid.UUID) ([]Plan, error)

	// FindLatestTrial returns the most recently created trial row.
	// Returns ErrPlanNotFound when the coach has none.
	FindLatestTrial(ctx context.Context, coachID uuid.UUID) (*Plan, error)

	// Insert writes a new row. Returns ErrActivePlanExists when the row is
	// active and the coach already has an active row.
	Insert(ctx context.Context, plan Plan) (*Plan, error)

	// UpdateStatus moves a row to a new status, optionally replacing its
	// subscription reference and activation time. Returns ErrPlanNotFound
	// or ErrActivePlanExists.
	UpdateStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) (*Plan, error)

	// FindPlanBySubscriptionRef returns the row that currently owns ref:
	// the active one if any, otherwise the most recent trial, otherwise the
	// most recent row. Returns ErrPlanNotFound.
	FindPlanBySubscriptionRef(ctx context.Context, ref string) (*Plan, error)

	// FindLatestWithSubscriptionRef returns the most recently activated row
	// (active, expired or cancelled) carrying a subscription reference.
	// Returns ErrPlanNotFound.
	FindLatestWithSubscriptionRef(ctx context.Context, coachID uuid.UUID) (*Plan, error)

	// FindCoachesDue lists coaches with a scheduled trial whose start has
	// passed or an active row that has expired.
	FindCoachesDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// StatusUpdate describes a status change. Nil pointer fields are left as is.
type StatusUpdate struct {
	Status          Status
	SubscriptionRef *string
	ActivatedAt     *time.Time
	UpdatedAt       time.Time
}
