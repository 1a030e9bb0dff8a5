package coachplan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/fitmarket/coachplans/pkg/logger"
)

const (
	defaultCheckoutTTL   = 7 * 24 * time.Hour
	defaultRenewalWindow = 7 * 24 * time.Hour
)

// Service drives the plan lifecycle: plan changes, reconciliation on read,
// payment confirmations and renewals.
type Service struct {
	catalog *Catalog
	store   Store
	gateway PaymentGateway
	usage   UsageReader
	log     *slog.Logger
	now     func() time.Time
	locale  language.Tag

	checkoutTTL   time.Duration
	renewalWindow time.Duration
}

// NewService creates a Service. Panics if a required dependency is nil so
// misconfiguration fails at startup.
func NewService(catalog *Catalog, store Store, gateway PaymentGateway, opts ...ServiceOption) *Service {
	if catalog == nil {
		panic("coachplan: catalog is required")
	}
	if store == nil {
		panic("coachplan: store is required")
	}
	if gateway == nil {
		panic("coachplan: payment gateway is required")
	}

	s := &Service{
		catalog:       catalog,
		store:         store,
		gateway:       gateway,
		log:           logger.Discard(),
		now:           time.Now,
		locale:        language.BrazilianPortuguese,
		checkoutTTL:   defaultCheckoutTTL,
		renewalWindow: defaultRenewalWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("coachplan"))
	return s
}

// Catalog returns the tier table the service was built with.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// storageUsed returns the live usage when a reader is configured, otherwise
// the fallback snapshot. Reader failures are logged and never block a write.
func (s *Service) storageUsed(ctx context.Context, coachID uuid.UUID, fallback float64) float64 {
	if s.usage == nil {
		return fallback
	}
	used, err := s.usage.StorageUsedGB(ctx, coachID)
	if err != nil {
		s.log.WarnContext(ctx, "storage usage unavailable, keeping snapshot",
			logger.CoachID(coachID), logger.Error(err))
		return fallback
	}
	return used
}

// readValidActive returns the newest active row that is valid at now, or nil.
func (s *Service) readValidActive(ctx context.Context, coachID uuid.UUID, now time.Time) (*Plan, []Plan, error) {
	actives, err := s.store.FindActivePlans(ctx, coachID)
	if err != nil {
		return nil, nil, err
	}
	for i := range actives {
		if actives[i].IsValidAt(now) {
			return &actives[i], actives, nil
		}
	}
	return nil, actives, nil
}

// latestTrial is FindLatestTrial with not-found mapped to nil.
func (s *Service) latestTrial(ctx context.Context, coachID uuid.UUID) (*Plan, error) {
	p, err := s.store.FindLatestTrial(ctx, coachID)
	if errors.Is(err, ErrPlanNotFound) {
		return nil, nil
	}
	return p, err
}

// cancelSubscription is a best-effort gateway cancel. Failures are logged.
func (s *Service) cancelSubscription(ctx context.Context, coachID uuid.UUID, ref string) {
	if ref == "" {
		return
	}
	if err := s.gateway.CancelSubscription(ctx, ref); err != nil {
		s.log.WarnContext(ctx, "failed to cancel subscription at gateway",
			logger.CoachID(coachID), logger.SubscriptionRef(ref), logger.Error(err))
	}
}

// updateAmount is a best-effort gateway amount change. Failures are logged.
func (s *Service) updateAmount(ctx context.Context, coachID uuid.UUID, ref string, tier Tier) {
	if ref == "" {
		return
	}
	def, err := s.catalog.Lookup(tier)
	if err != nil {
		s.log.ErrorContext(ctx, "cannot update subscription amount", logger.Tier(string(tier)), logger.Error(err))
		return
	}
	change := AmountChange{Tier: tier, Amount: def.Price, Reason: subscriptionReason(def)}
	if err := s.gateway.UpdateSubscriptionAmount(ctx, ref, change); err != nil {
		s.log.WarnContext(ctx, "failed to update subscription amount at gateway",
			logger.CoachID(coachID), logger.SubscriptionRef(ref), logger.Tier(string(tier)), logger.Error(err))
	}
}

// subscriptionReason is the description the payer sees on their statement.
func subscriptionReason(def TierDefinition) string {
	return fmt.Sprintf("%s coach plan", def.Name)
}

// retirePending cancels a superseded or abandoned trial row, and its
// external subscription when it was still waiting for payment.
func (s *Service) retirePending(ctx context.Context, pending *Plan, now time.Time) error {
	if pending == nil {
		return nil
	}
	if _, err := s.store.UpdateStatus(ctx, pending.ID, StatusUpdate{Status: StatusCancelled, UpdatedAt: now}); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "pending plan retired",
		logger.CoachID(pending.CoachID), logger.PlanID(pending.ID), logger.Tier(string(pending.Tier)))

	if pending.PendingKind() == PendingPayment {
		s.cancelSubscription(ctx, pending.CoachID, pending.SubscriptionRef)
	}
	return nil
}
