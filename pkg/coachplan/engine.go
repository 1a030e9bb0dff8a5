package coachplan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitmarket/coachplans/pkg/logger"
	"github.com/fitmarket/coachplans/pkg/validator"
)

const maxPayerEmailLen = 254

// ChangeRequest asks to move a coach to Tier. PayerEmail is required when
// the change opens a new paid subscription.
type ChangeRequest struct {
	CoachID    uuid.UUID
	Tier       Tier
	PayerEmail string
}

// RequestPlanChange classifies the requested tier against the coach's current
// plan and writes the resulting row.
//
// Upgrades to a paid tier open a subscription at the gateway first; if that
// fails nothing is written. Downgrades are scheduled to start when the
// current period ends and adjust the existing subscription best-effort.
// A request for the tier already pending returns the pending row unchanged;
// a request for any other tier supersedes it.
func (s *Service) RequestPlanChange(ctx context.Context, req ChangeRequest) (*Result, error) {
	if !req.Tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, req.Tier)
	}
	def, err := s.catalog.Lookup(req.Tier)
	if err != nil {
		return nil, err
	}

	state, err := s.reconcile(ctx, req.CoachID, false)
	if err != nil {
		return nil, err
	}
	current, pending := state.Plan, state.PendingPlan
	transition := classify(current, req.Tier)

	log := s.log.With(logger.CoachID(req.CoachID), logger.Tier(string(req.Tier)), logger.Transition(string(transition)))

	if transition == TransitionSame {
		res := newResult(current, pending)
		res.Transition = transition
		res.Message = fmt.Sprintf("You are already on the %s plan. No changes were made.", def.Name)
		log.DebugContext(ctx, "plan change is a no-op")
		return res, nil
	}

	if pending != nil && pending.Tier == req.Tier {
		res := newResult(pending, pending)
		res.Transition = transition
		res.IsUpgrade = transition == TransitionUpgrade
		res.IsDowngrade = isDowngrade(transition)
		res.Message = s.pendingMessage(def, pending)
		log.DebugContext(ctx, "requested tier is already pending", logger.PlanID(pending.ID))
		return res, nil
	}

	switch transition {
	case TransitionFresh, TransitionUpgrade:
		if !req.Tier.IsPaid() {
			return s.startFree(ctx, req.CoachID, def, pending, transition)
		}
		return s.startPaid(ctx, req, def, current, pending, transition)
	default:
		return s.scheduleDowngrade(ctx, req.CoachID, def, current, pending, transition)
	}
}

func isDowngrade(t Transition) bool {
	return t == TransitionDowngradeToFree || t == TransitionDowngradePaidToPaid
}

// startFree writes an active free row for a coach without a current plan.
func (s *Service) startFree(ctx context.Context, coachID uuid.UUID, def TierDefinition, pending *Plan, transition Transition) (*Result, error) {
	now := s.clock()
	plan, err := s.insertFreeActive(ctx, coachID, def, now)
	if err != nil {
		return nil, err
	}
	s.supersede(ctx, pending, nil, now, false)

	res := newResult(plan, nil)
	res.Transition = transition
	res.IsUpgrade = transition == TransitionUpgrade
	res.Message = fmt.Sprintf("Your %s plan is active until %s.", def.Name, formatDate(*plan.ExpiresAt))
	return res, nil
}

// startPaid opens a subscription and writes a row awaiting its authorization.
// The gateway call comes first so a failure leaves no row behind.
func (s *Service) startPaid(ctx context.Context, req ChangeRequest, def TierDefinition, current, pending *Plan, transition Transition) (*Result, error) {
	req.PayerEmail = strings.TrimSpace(req.PayerEmail)
	if err := validator.Apply(
		validator.ValidEmail("payer_email", req.PayerEmail),
		validator.MaxLen("payer_email", req.PayerEmail, maxPayerEmailLen),
	); err != nil {
		return nil, errors.Join(ErrPayerEmailRequired, err)
	}

	session, err := s.gateway.CreateSubscription(ctx, SubscriptionRequest{
		CoachID:    req.CoachID,
		Tier:       req.Tier,
		PayerEmail: req.PayerEmail,
		Amount:     def.Price,
		Reason:     subscriptionReason(def),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to create subscription",
			logger.CoachID(req.CoachID), logger.Tier(string(req.Tier)), logger.Error(err))
		if !errors.Is(err, ErrPaymentNotConfigured) && !errors.Is(err, ErrGatewayUnavailable) {
			err = errors.Join(ErrGatewayUnavailable, err)
		}
		return nil, err
	}

	now := s.clock()
	plan, err := s.writePaymentPending(ctx, req.CoachID, def, current, pending, session, now)
	if err != nil {
		// The subscription has no row to belong to; withdraw it.
		s.cancelSubscription(ctx, req.CoachID, session.SubscriptionRef)
		return nil, err
	}

	s.log.InfoContext(ctx, "plan change awaiting payment",
		logger.CoachID(req.CoachID), logger.PlanID(plan.ID), logger.Tier(string(req.Tier)),
		logger.Transition(string(transition)), logger.SubscriptionRef(session.SubscriptionRef))

	res := newResult(plan, plan)
	res.Transition = transition
	res.IsUpgrade = transition == TransitionUpgrade
	res.Message = s.pendingMessage(def, plan)
	return res, nil
}

func (s *Service) writePaymentPending(ctx context.Context, coachID uuid.UUID, def TierDefinition, current, pending *Plan, session *CheckoutSession, now time.Time) (*Plan, error) {
	var used float64
	if current != nil {
		used = current.StorageUsedGB
	}
	plan, err := s.store.Insert(ctx, Plan{
		ID:              uuid.New(),
		CoachID:         coachID,
		Tier:            def.Tier,
		Status:          StatusTrial,
		StorageLimitGB:  def.StorageLimitGB,
		StorageUsedGB:   s.storageUsed(ctx, coachID, used),
		StartedAt:       now,
		ExpiresAt:       periodEnd(now),
		SubscriptionRef: session.SubscriptionRef,
		CheckoutURL:     session.CheckoutURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, err
	}
	s.supersede(ctx, pending, current, now, true)
	return plan, nil
}

// scheduleDowngrade writes a row starting when the current period ends.
// The new row never carries a subscription reference; the existing one is
// carried forward when the row is promoted.
func (s *Service) scheduleDowngrade(ctx context.Context, coachID uuid.UUID, def TierDefinition, current, pending *Plan, transition Transition) (*Result, error) {
	if current.ExpiresAt == nil {
		s.log.ErrorContext(ctx, "current plan has no expiry, cannot schedule downgrade",
			logger.CoachID(coachID), logger.PlanID(current.ID))
		return nil, fmt.Errorf("%w: plan %s", ErrMissingExpiry, current.ID)
	}

	now := s.clock()
	start := *current.ExpiresAt
	renewals := current.RenewalCount
	if def.Tier == TierFree {
		renewals = 0
	}

	plan, err := s.store.Insert(ctx, Plan{
		ID:             uuid.New(),
		CoachID:        coachID,
		Tier:           def.Tier,
		Status:         StatusTrial,
		StorageLimitGB: def.StorageLimitGB,
		StorageUsedGB:  current.StorageUsedGB,
		StartedAt:      start,
		ExpiresAt:      periodEnd(start),
		RenewalCount:   renewals,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, err
	}
	s.supersede(ctx, pending, current, now, false)

	switch transition {
	case TransitionDowngradeToFree:
		s.cancelSubscription(ctx, coachID, current.SubscriptionRef)
	case TransitionDowngradePaidToPaid:
		s.updateAmount(ctx, coachID, current.SubscriptionRef, def.Tier)
	}

	s.log.InfoContext(ctx, "plan downgrade scheduled",
		logger.CoachID(coachID), logger.PlanID(plan.ID), logger.Tier(string(def.Tier)),
		logger.Transition(string(transition)), "starts_at", start)

	res := newResult(plan, plan)
	res.Transition = transition
	res.IsDowngrade = true
	res.Message = s.pendingMessage(def, plan)
	return res, nil
}

// insertFreeActive writes an active free row. If another request won the
// race for the active slot, the row it wrote is returned instead.
func (s *Service) insertFreeActive(ctx context.Context, coachID uuid.UUID, def TierDefinition, now time.Time) (*Plan, error) {
	plan, err := s.store.Insert(ctx, Plan{
		ID:             uuid.New(),
		CoachID:        coachID,
		Tier:           TierFree,
		Status:         StatusActive,
		StorageLimitGB: def.StorageLimitGB,
		StorageUsedGB:  s.storageUsed(ctx, coachID, 0),
		StartedAt:      now,
		ExpiresAt:      periodEnd(now),
		ActivatedAt:    &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if errors.Is(err, ErrActivePlanExists) {
		return s.rereadActive(ctx, coachID, now, err)
	}
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "free plan created", logger.CoachID(coachID), logger.PlanID(plan.ID))
	return plan, nil
}

// rereadActive resolves a lost race for the active slot by returning the
// winner. cause is returned when no valid row can be found.
func (s *Service) rereadActive(ctx context.Context, coachID uuid.UUID, now time.Time, cause error) (*Plan, error) {
	s.log.DebugContext(ctx, "active plan already exists, re-reading", logger.CoachID(coachID))
	active, _, err := s.readValidActive(ctx, coachID, now)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, cause
	}
	return active, nil
}

// withdrawPending retires a pending row that is being replaced or cancelled.
// With restoreAmount set, a scheduled paid downgrade gives the current
// subscription back its full price.
func (s *Service) withdrawPending(ctx context.Context, pending, current *Plan, now time.Time, restoreAmount bool) error {
	if err := s.retirePending(ctx, pending, now); err != nil {
		return err
	}
	if !restoreAmount || pending == nil || current == nil {
		return nil
	}
	if pending.PendingKind() == ScheduledTransition && pending.Tier.IsPaid() &&
		current.Tier.IsPaid() && pending.Tier != current.Tier {
		s.updateAmount(ctx, current.CoachID, current.SubscriptionRef, current.Tier)
	}
	return nil
}

// supersede withdraws the pending row replaced by a row just written. The new
// row is already the latest trial, so a failure here is logged and the
// change still stands.
func (s *Service) supersede(ctx context.Context, pending, current *Plan, now time.Time, restoreAmount bool) {
	if pending == nil {
		return
	}
	if err := s.withdrawPending(ctx, pending, current, now, restoreAmount); err != nil {
		s.log.ErrorContext(ctx, "failed to retire superseded pending plan",
			logger.CoachID(pending.CoachID), logger.PlanID(pending.ID), logger.Error(err))
	}
}

func (s *Service) pendingMessage(def TierDefinition, pending *Plan) string {
	if pending.PendingKind() == PendingPayment {
		return fmt.Sprintf("Authorize the recurring payment of %s per month to activate the %s plan.",
			def.Price.Format(s.locale), def.Name)
	}
	return fmt.Sprintf("Your plan will change to %s on %s. You keep your current plan until then.",
		def.Name, formatDate(pending.StartedAt))
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
