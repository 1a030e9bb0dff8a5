package coachplan

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fitmarket/coachplans/pkg/logger"
)

// ReadPlan returns the coach's effective plan, applying any transition whose
// time has come:
//
//   - a scheduled row whose start has passed is promoted to active and the
//     expired active rows are retired;
//   - a checkout left unauthorized for longer than the checkout TTL is
//     abandoned;
//   - a coach with no valid active row gets a free plan.
//
// Every surface that depends on the coach's tier must go through ReadPlan.
func (s *Service) ReadPlan(ctx context.Context, coachID uuid.UUID) (*Result, error) {
	return s.reconcile(ctx, coachID, true)
}

// reconcile implements ReadPlan. With ensureActive false it never creates
// the default free row, so callers can tell a brand-new coach apart.
func (s *Service) reconcile(ctx context.Context, coachID uuid.UUID, ensureActive bool) (*Result, error) {
	now := s.clock()

	active, actives, err := s.readValidActive(ctx, coachID, now)
	if err != nil {
		return nil, err
	}
	trial, err := s.latestTrial(ctx, coachID)
	if err != nil {
		return nil, err
	}

	if trial != nil && s.checkoutAbandoned(trial, now) {
		if err := s.retirePending(ctx, trial, now); err != nil {
			return nil, err
		}
		trial = nil
	}

	if active != nil {
		return newResult(active, trial), nil
	}

	if trial != nil && trial.PendingKind() == ScheduledTransition && trial.IsDueAt(now) {
		s.expireStale(ctx, actives, now)
		promoted, err := s.promote(ctx, trial, now)
		if err != nil {
			return nil, err
		}
		return newResult(promoted, nil), nil
	}

	s.lapse(ctx, actives, now)
	if !ensureActive {
		return newResult(nil, trial), nil
	}

	def, err := s.catalog.Lookup(TierFree)
	if err != nil {
		return nil, err
	}
	plan, err := s.insertFreeActive(ctx, coachID, def, now)
	if err != nil {
		return nil, err
	}
	return newResult(plan, trial), nil
}

func (s *Service) checkoutAbandoned(trial *Plan, now time.Time) bool {
	return trial.PendingKind() == PendingPayment && now.Sub(trial.CreatedAt) > s.checkoutTTL
}

// expireStale flips active rows past their expiry to expired and returns
// the rows it flipped. Failures are logged; a row left active surfaces later
// as a uniqueness conflict.
func (s *Service) expireStale(ctx context.Context, actives []Plan, now time.Time) []Plan {
	var expired []Plan
	for i := range actives {
		p := &actives[i]
		if !p.IsStaleAt(now) {
			continue
		}
		if _, err := s.store.UpdateStatus(ctx, p.ID, StatusUpdate{Status: StatusExpired, UpdatedAt: now}); err != nil {
			s.log.WarnContext(ctx, "failed to expire stale plan",
				logger.CoachID(p.CoachID), logger.PlanID(p.ID), logger.Error(err))
			continue
		}
		s.log.InfoContext(ctx, "stale plan expired",
			logger.CoachID(p.CoachID), logger.PlanID(p.ID), logger.Tier(string(p.Tier)))
		expired = append(expired, *p)
	}
	return expired
}

// lapse expires stale rows that have no successor. Their subscriptions stop
// at the gateway, since nothing carries them forward.
func (s *Service) lapse(ctx context.Context, actives []Plan, now time.Time) {
	for _, p := range s.expireStale(ctx, actives, now) {
		if !p.Tier.IsPaid() {
			continue
		}
		s.cancelSubscription(ctx, p.CoachID, p.SubscriptionRef)
	}
}

// promote activates a due scheduled row. Paid tiers inherit the subscription
// reference of the latest activated row so billing continues; free clears it.
func (s *Service) promote(ctx context.Context, trial *Plan, now time.Time) (*Plan, error) {
	ref := ""
	if trial.Tier.IsPaid() {
		prior, err := s.store.FindLatestWithSubscriptionRef(ctx, trial.CoachID)
		switch {
		case err == nil:
			ref = prior.SubscriptionRef
		case errors.Is(err, ErrPlanNotFound):
			s.log.WarnContext(ctx, "no subscription to carry forward to promoted plan",
				logger.CoachID(trial.CoachID), logger.PlanID(trial.ID))
		default:
			return nil, err
		}
	}

	plan, err := s.store.UpdateStatus(ctx, trial.ID, StatusUpdate{
		Status:          StatusActive,
		SubscriptionRef: &ref,
		ActivatedAt:     &now,
		UpdatedAt:       now,
	})
	if errors.Is(err, ErrActivePlanExists) {
		return s.rereadActive(ctx, trial.CoachID, now, err)
	}
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "scheduled plan promoted",
		logger.CoachID(plan.CoachID), logger.PlanID(plan.ID), logger.Tier(string(plan.Tier)),
		logger.SubscriptionRef(ref))
	return plan, nil
}
