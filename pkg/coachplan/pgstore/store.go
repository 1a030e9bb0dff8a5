package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fitmarket/coachplans/pkg/coachplan"
	"github.com/fitmarket/coachplans/pkg/pg"
)

// DB is the subset of *pgxpool.Pool used by the store. pgx.Tx satisfies it
// as well.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements coachplan.Store on PostgreSQL.
type Store struct {
	db DB
}

var _ coachplan.Store = (*Store)(nil)

// New creates a Store. Panics if db is nil.
func New(db DB) *Store {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &Store{db: db}
}

const planColumns = `id, coach_id, tier, status, storage_limit_gb, storage_used_gb,
	started_at, expires_at, renewal_count, subscription_ref, checkout_url,
	activated_at, created_at, updated_at`

func (s *Store) FindActivePlans(ctx context.Context, coachID uuid.UUID) ([]coachplan.Plan, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+planColumns+` FROM coach_plans
		WHERE coach_id = $1 AND status = 'active'
		ORDER BY started_at DESC`, coachID)
	if err != nil {
		return nil, fmt.Errorf("find active plans: %w", err)
	}
	return collectPlans(rows)
}

func (s *Store) FindLatestTrial(ctx context.Context, coachID uuid.UUID) (*coachplan.Plan, error) {
	return s.queryOne(ctx, "find latest trial", `
		SELECT `+planColumns+` FROM coach_plans
		WHERE coach_id = $1 AND status = 'trial'
		ORDER BY created_at DESC
		LIMIT 1`, coachID)
}

func (s *Store) Insert(ctx context.Context, plan coachplan.Plan) (*coachplan.Plan, error) {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	if plan.UpdatedAt.IsZero() {
		plan.UpdatedAt = plan.CreatedAt
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO coach_plans (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+planColumns,
		plan.ID, plan.CoachID, string(plan.Tier), string(plan.Status),
		plan.StorageLimitGB, plan.StorageUsedGB,
		plan.StartedAt, plan.ExpiresAt, plan.RenewalCount,
		nullString(plan.SubscriptionRef), nullString(plan.CheckoutURL),
		plan.ActivatedAt, plan.CreatedAt, plan.UpdatedAt)

	inserted, err := scanPlan(row)
	if err != nil {
		return nil, mapError("insert plan", err)
	}
	return inserted, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, upd coachplan.StatusUpdate) (*coachplan.Plan, error) {
	updatedAt := upd.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	var ref string
	if upd.SubscriptionRef != nil {
		ref = *upd.SubscriptionRef
	}

	// an empty reference clears the column
	row := s.db.QueryRow(ctx, `
		UPDATE coach_plans SET
			status = $2,
			subscription_ref = CASE WHEN $3::boolean THEN NULLIF($4::text, '') ELSE subscription_ref END,
			activated_at = COALESCE($5, activated_at),
			updated_at = $6
		WHERE id = $1
		RETURNING `+planColumns,
		id, string(upd.Status), upd.SubscriptionRef != nil, ref, upd.ActivatedAt, updatedAt)

	plan, err := scanPlan(row)
	if err != nil {
		return nil, mapError("update plan status", err)
	}
	return plan, nil
}

func (s *Store) FindPlanBySubscriptionRef(ctx context.Context, ref string) (*coachplan.Plan, error) {
	return s.queryOne(ctx, "find plan by subscription", `
		SELECT `+planColumns+` FROM coach_plans
		WHERE subscription_ref = $1
		ORDER BY CASE status WHEN 'active' THEN 2 WHEN 'trial' THEN 1 ELSE 0 END DESC,
			created_at DESC
		LIMIT 1`, ref)
}

func (s *Store) FindLatestWithSubscriptionRef(ctx context.Context, coachID uuid.UUID) (*coachplan.Plan, error) {
	return s.queryOne(ctx, "find latest subscribed plan", `
		SELECT `+planColumns+` FROM coach_plans
		WHERE coach_id = $1
			AND subscription_ref IS NOT NULL
			AND activated_at IS NOT NULL
			AND status <> 'trial'
		ORDER BY activated_at DESC
		LIMIT 1`, coachID)
}

func (s *Store) FindCoachesDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT coach_id FROM coach_plans
		WHERE (status = 'trial' AND subscription_ref IS NULL AND started_at <= $1)
			OR (status = 'active' AND expires_at <= $1)
		LIMIT NULLIF($2::int, 0)`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find coaches due: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("find coaches due: %w", err)
	}
	return ids, nil
}

func (s *Store) queryOne(ctx context.Context, op, sql string, args ...any) (*coachplan.Plan, error) {
	plan, err := scanPlan(s.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(op, err)
	}
	return plan, nil
}

func collectPlans(rows pgx.Rows) ([]coachplan.Plan, error) {
	defer rows.Close()

	var plans []coachplan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

func scanPlan(row pgx.Row) (*coachplan.Plan, error) {
	var (
		p           coachplan.Plan
		tier        string
		status      string
		ref         *string
		checkoutURL *string
	)
	err := row.Scan(&p.ID, &p.CoachID, &tier, &status, &p.StorageLimitGB, &p.StorageUsedGB,
		&p.StartedAt, &p.ExpiresAt, &p.RenewalCount, &ref, &checkoutURL,
		&p.ActivatedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.StartedAt = p.StartedAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	p.ExpiresAt = utc(p.ExpiresAt)
	p.ActivatedAt = utc(p.ActivatedAt)
	p.Tier = coachplan.Tier(tier)
	p.Status = coachplan.Status(status)
	if ref != nil {
		p.SubscriptionRef = *ref
	}
	if checkoutURL != nil {
		p.CheckoutURL = *checkoutURL
	}
	return &p, nil
}

func mapError(op string, err error) error {
	switch {
	case pg.IsNotFoundError(err):
		return coachplan.ErrPlanNotFound
	case pg.IsDuplicateKeyError(err):
		return coachplan.ErrActivePlanExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
