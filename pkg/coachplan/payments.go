package coachplan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fitmarket/coachplans/pkg/logger"
)

// PaymentEventKind is a normalized gateway notification.
type PaymentEventKind string

const (
	// EventSubscriptionAuthorized: the payer authorized a recurring subscription.
	EventSubscriptionAuthorized PaymentEventKind = "subscription_authorized"
	// EventPaymentApproved: a recurring charge was collected.
	EventPaymentApproved PaymentEventKind = "payment_approved"
	// EventIgnored: a notification with no effect on plans.
	EventIgnored PaymentEventKind = "ignored"
)

// PaymentEvent is produced by a gateway adapter from a provider notification.
type PaymentEvent struct {
	Kind            PaymentEventKind
	SubscriptionRef string
}

// HandlePaymentEvent dispatches a normalized gateway notification.
func (s *Service) HandlePaymentEvent(ctx context.Context, ev PaymentEvent) error {
	switch ev.Kind {
	case EventSubscriptionAuthorized:
		_, err := s.ConfirmPayment(ctx, ev.SubscriptionRef)
		return err
	case EventPaymentApproved:
		_, err := s.RecordRenewal(ctx, ev.SubscriptionRef)
		return err
	default:
		s.log.DebugContext(ctx, "payment event ignored", logger.SubscriptionRef(ev.SubscriptionRef))
		return nil
	}
}

// ConfirmPayment activates the row waiting for authorization of ref. The
// plan it replaces is cancelled and its own subscription is stopped so the
// coach is not billed twice. Confirming an already active row is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, ref string) (*Plan, error) {
	plan, err := s.planForRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	switch plan.Status {
	case StatusActive:
		return plan, nil
	case StatusTrial:
	default:
		return nil, fmt.Errorf("%w: plan %s is %s", ErrPlanNotPending, plan.ID, plan.Status)
	}

	now := s.clock()
	actives, err := s.store.FindActivePlans(ctx, plan.CoachID)
	if err != nil {
		return nil, err
	}
	for i := range actives {
		prev := &actives[i]
		if _, err := s.store.UpdateStatus(ctx, prev.ID, StatusUpdate{Status: StatusCancelled, UpdatedAt: now}); err != nil {
			return nil, err
		}
		s.log.InfoContext(ctx, "plan superseded by confirmed payment",
			logger.CoachID(prev.CoachID), logger.PlanID(prev.ID), logger.Tier(string(prev.Tier)))
		if prev.SubscriptionRef != ref {
			s.cancelSubscription(ctx, prev.CoachID, prev.SubscriptionRef)
		}
	}

	activated, err := s.store.UpdateStatus(ctx, plan.ID, StatusUpdate{
		Status:      StatusActive,
		ActivatedAt: &now,
		UpdatedAt:   now,
	})
	if errors.Is(err, ErrActivePlanExists) {
		// A concurrent confirmation of the same ref got there first.
		again, rerr := s.planForRef(ctx, ref)
		if rerr == nil && again.Status == StatusActive {
			return again, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "payment confirmed, plan activated",
		logger.CoachID(activated.CoachID), logger.PlanID(activated.ID),
		logger.Tier(string(activated.Tier)), logger.SubscriptionRef(ref))
	return activated, nil
}

// RecordRenewal handles a collected recurring charge for ref. The first
// charge of a subscription confirms it. A charge landing within the renewal
// window before the active row expires schedules the next period of the same
// tier, and one landing within the window after a lapse reinstates the tier.
// It returns the new row, or nil when nothing had to change.
func (s *Service) RecordRenewal(ctx context.Context, ref string) (*Plan, error) {
	plan, err := s.planForRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	switch plan.Status {
	case StatusTrial:
		return s.ConfirmPayment(ctx, ref)
	case StatusActive:
	case StatusExpired:
		return s.reinstate(ctx, plan)
	default:
		s.log.InfoContext(ctx, "charge for retired plan ignored",
			logger.CoachID(plan.CoachID), logger.PlanID(plan.ID), logger.SubscriptionRef(ref))
		return nil, nil
	}

	if plan.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: plan %s", ErrMissingExpiry, plan.ID)
	}
	now := s.clock()
	if now.Before(plan.ExpiresAt.Add(-s.renewalWindow)) {
		s.log.DebugContext(ctx, "charge covers the current period",
			logger.CoachID(plan.CoachID), logger.PlanID(plan.ID))
		return nil, nil
	}

	pending, err := s.latestTrial(ctx, plan.CoachID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		s.log.InfoContext(ctx, "renewal skipped, another change is pending",
			logger.CoachID(plan.CoachID), logger.PlanID(pending.ID), logger.Tier(string(pending.Tier)))
		return nil, nil
	}

	start := *plan.ExpiresAt
	next, err := s.store.Insert(ctx, Plan{
		ID:             uuid.New(),
		CoachID:        plan.CoachID,
		Tier:           plan.Tier,
		Status:         StatusTrial,
		StorageLimitGB: plan.StorageLimitGB,
		StorageUsedGB:  s.storageUsed(ctx, plan.CoachID, plan.StorageUsedGB),
		StartedAt:      start,
		ExpiresAt:      periodEnd(start),
		RenewalCount:   plan.RenewalCount + 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "renewal scheduled",
		logger.CoachID(next.CoachID), logger.PlanID(next.ID), logger.Tier(string(next.Tier)),
		"renewal_count", next.RenewalCount)
	return next, nil
}

// reinstate restores a paid tier whose charge arrived after the row lapsed.
// The new period continues where the lapsed one ended and replaces the free
// plan the coach fell back to. Nothing changes once the renewal window has
// passed or when the coach has since chosen another plan. The subscription
// may already be stopped at the gateway; the coach keeps the tier for the
// period the charge paid for.
func (s *Service) reinstate(ctx context.Context, lapsed *Plan) (*Plan, error) {
	now := s.clock()
	log := s.log.With(logger.CoachID(lapsed.CoachID), logger.PlanID(lapsed.ID),
		logger.SubscriptionRef(lapsed.SubscriptionRef))

	if lapsed.ExpiresAt == nil || !now.Before(lapsed.ExpiresAt.Add(s.renewalWindow)) {
		log.InfoContext(ctx, "charge for retired plan ignored")
		return nil, nil
	}

	state, err := s.reconcile(ctx, lapsed.CoachID, false)
	if err != nil {
		return nil, err
	}
	fallback := state.Plan
	if state.PendingPlan != nil ||
		(fallback != nil && (fallback.Tier.IsPaid() || fallback.CreatedAt.Before(*lapsed.ExpiresAt))) {
		log.InfoContext(ctx, "charge for lapsed plan ignored, coach has moved on")
		return nil, nil
	}

	if fallback != nil {
		if _, err := s.store.UpdateStatus(ctx, fallback.ID, StatusUpdate{Status: StatusCancelled, UpdatedAt: now}); err != nil {
			return nil, err
		}
	}

	start := *lapsed.ExpiresAt
	plan, err := s.store.Insert(ctx, Plan{
		ID:              uuid.New(),
		CoachID:         lapsed.CoachID,
		Tier:            lapsed.Tier,
		Status:          StatusActive,
		StorageLimitGB:  lapsed.StorageLimitGB,
		StorageUsedGB:   s.storageUsed(ctx, lapsed.CoachID, lapsed.StorageUsedGB),
		StartedAt:       start,
		ExpiresAt:       periodEnd(start),
		RenewalCount:    lapsed.RenewalCount + 1,
		SubscriptionRef: lapsed.SubscriptionRef,
		ActivatedAt:     &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if errors.Is(err, ErrActivePlanExists) {
		// A duplicate delivery of the same charge got there first.
		if again, rerr := s.planForRef(ctx, lapsed.SubscriptionRef); rerr == nil && again.Status == StatusActive {
			return again, nil
		}
	}
	if err != nil {
		if fallback != nil {
			if _, rerr := s.store.UpdateStatus(ctx, fallback.ID, StatusUpdate{Status: StatusActive, UpdatedAt: now}); rerr != nil {
				log.ErrorContext(ctx, "failed to restore free plan after reinstatement failure", logger.Error(rerr))
			}
		}
		return nil, err
	}

	log.InfoContext(ctx, "lapsed plan reinstated by late charge",
		logger.Tier(string(plan.Tier)), "renewal_count", plan.RenewalCount)
	return plan, nil
}

// CancelPendingChange withdraws the coach's pending row. A checkout is
// cancelled at the gateway; a scheduled paid downgrade restores the current
// tier's amount. A scheduled move to free cannot be withdrawn because its
// subscription was already cancelled.
func (s *Service) CancelPendingChange(ctx context.Context, coachID uuid.UUID) (*Result, error) {
	state, err := s.reconcile(ctx, coachID, true)
	if err != nil {
		return nil, err
	}
	pending := state.PendingPlan
	if pending == nil {
		return nil, ErrNoPendingChange
	}

	if pending.PendingKind() == ScheduledTransition && pending.Tier == TierFree &&
		state.Plan != nil && state.Plan.Tier.IsPaid() {
		return nil, ErrChangeNotReversible
	}

	current := state.Plan
	if err := s.withdrawPending(ctx, pending, current, s.clock(), true); err != nil {
		return nil, err
	}

	res := newResult(current, nil)
	if current != nil {
		def, err := s.catalog.Lookup(current.Tier)
		if err == nil {
			res.Message = fmt.Sprintf("Pending change cancelled. You stay on the %s plan.", def.Name)
		}
	}
	return res, nil
}

func (s *Service) planForRef(ctx context.Context, ref string) (*Plan, error) {
	if ref == "" {
		return nil, ErrSubscriptionNotFound
	}
	plan, err := s.store.FindPlanBySubscriptionRef(ctx, ref)
	if errors.Is(err, ErrPlanNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, ref)
	}
	return plan, err
}
