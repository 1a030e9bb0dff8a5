package coachplan

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entitlements are the limits the coach's effective plan grants right now.
type Entitlements struct {
	CoachID           uuid.UUID
	Tier              Tier
	TierName          string
	StorageLimitGB    float64
	StorageUsedGB     float64
	CatalogLimit      int
	CommissionPercent float64
	ExpiresAt         *time.Time
}

// CanStore reports whether additionalGB more fits under the storage limit.
func (e *Entitlements) CanStore(additionalGB float64) bool {
	return e.StorageUsedGB+additionalGB <= e.StorageLimitGB
}

// CanPublish reports whether a coach with current published activities may
// publish one more.
func (e *Entitlements) CanPublish(current int) bool {
	return e.CatalogLimit == Unlimited || current < e.CatalogLimit
}

// Entitlements reads the coach's plan through the reconciler and returns the
// limits of its tier.
func (s *Service) Entitlements(ctx context.Context, coachID uuid.UUID) (*Entitlements, error) {
	state, err := s.ReadPlan(ctx, coachID)
	if err != nil {
		return nil, err
	}
	plan := state.Plan

	def, err := s.catalog.Lookup(plan.Tier)
	if err != nil {
		return nil, err
	}

	return &Entitlements{
		CoachID:           coachID,
		Tier:              def.Tier,
		TierName:          def.Name,
		StorageLimitGB:    def.StorageLimitGB,
		StorageUsedGB:     s.storageUsed(ctx, coachID, plan.StorageUsedGB),
		CatalogLimit:      def.CatalogLimit,
		CommissionPercent: def.CommissionPercent,
		ExpiresAt:         plan.ExpiresAt,
	}, nil
}
