package planapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/fitmarket/coachplans/pkg/coachplan"
)

type planDTO struct {
	ID             uuid.UUID  `json:"id"`
	PlanType       string     `json:"plan_type"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	StorageLimitGB float64    `json:"storage_limit_gb"`
	StorageUsedGB  float64    `json:"storage_used_gb"`
	StartedAt      time.Time  `json:"started_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	RenewalCount   int        `json:"renewal_count"`
}

type pendingDTO struct {
	Kind        string     `json:"kind"`
	Plan        planDTO    `json:"plan"`
	CheckoutURL string     `json:"checkout_url,omitempty"`
	ActivatesAt *time.Time `json:"activates_at,omitempty"`
}

type resultDTO struct {
	Plan            *planDTO    `json:"plan"`
	Pending         *pendingDTO `json:"pending,omitempty"`
	Transition      string      `json:"transition,omitempty"`
	IsUpgrade       bool        `json:"is_upgrade"`
	IsDowngrade     bool        `json:"is_downgrade"`
	RequiresPayment bool        `json:"requires_payment"`
	CheckoutURL     string      `json:"checkout_url,omitempty"`
	Message         string      `json:"message,omitempty"`
}

type priceDTO struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Formatted string `json:"formatted"`
}

type tierDTO struct {
	PlanType          string   `json:"plan_type"`
	Name              string   `json:"name"`
	Level             int      `json:"level"`
	Price             priceDTO `json:"price"`
	StorageLimitGB    float64  `json:"storage_limit_gb"`
	CatalogLimit      *int     `json:"catalog_limit"` // null means unlimited
	CommissionPercent float64  `json:"commission_percent"`
}

type entitlementsDTO struct {
	PlanType          string     `json:"plan_type"`
	Name              string     `json:"name"`
	StorageLimitGB    float64    `json:"storage_limit_gb"`
	StorageUsedGB     float64    `json:"storage_used_gb"`
	CatalogLimit      *int       `json:"catalog_limit"`
	CommissionPercent float64    `json:"commission_percent"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

type changeRequest struct {
	PlanType   string `json:"plan_type"`
	PayerEmail string `json:"payer_email"`
}

func (a *API) toPlan(p *coachplan.Plan) *planDTO {
	if p == nil {
		return nil
	}
	name := string(p.Tier)
	if def, err := a.svc.Catalog().Lookup(p.Tier); err == nil {
		name = def.Name
	}
	return &planDTO{
		ID:             p.ID,
		PlanType:       string(p.Tier),
		Name:           name,
		Status:         string(p.Status),
		StorageLimitGB: p.StorageLimitGB,
		StorageUsedGB:  p.StorageUsedGB,
		StartedAt:      p.StartedAt,
		ExpiresAt:      p.ExpiresAt,
		RenewalCount:   p.RenewalCount,
	}
}

func (a *API) toResult(res *coachplan.Result) resultDTO {
	out := resultDTO{
		Plan:            a.toPlan(res.Plan),
		Transition:      string(res.Transition),
		IsUpgrade:       res.IsUpgrade,
		IsDowngrade:     res.IsDowngrade,
		RequiresPayment: res.RequiresPayment,
		CheckoutURL:     res.CheckoutURL,
		Message:         res.Message,
	}
	if p := res.Pending; p != nil {
		out.Pending = &pendingDTO{
			Kind:        string(p.Kind),
			Plan:        *a.toPlan(p.Plan),
			CheckoutURL: p.CheckoutURL,
		}
		if p.Kind == coachplan.ScheduledTransition {
			at := p.ActivatesAt
			out.Pending.ActivatesAt = &at
		}
	}
	return out
}

func (a *API) toTier(def coachplan.TierDefinition) tierDTO {
	return tierDTO{
		PlanType: string(def.Tier),
		Name:     def.Name,
		Level:    def.Tier.Level(),
		Price: priceDTO{
			Amount:    def.Price.Amount,
			Currency:  def.Price.Currency,
			Formatted: def.Price.Format(a.locale),
		},
		StorageLimitGB:    def.StorageLimitGB,
		CatalogLimit:      catalogLimit(def.CatalogLimit),
		CommissionPercent: def.CommissionPercent,
	}
}

func toEntitlements(e *coachplan.Entitlements) entitlementsDTO {
	return entitlementsDTO{
		PlanType:          string(e.Tier),
		Name:              e.TierName,
		StorageLimitGB:    e.StorageLimitGB,
		StorageUsedGB:     e.StorageUsedGB,
		CatalogLimit:      catalogLimit(e.CatalogLimit),
		CommissionPercent: e.CommissionPercent,
		ExpiresAt:         e.ExpiresAt,
	}
}

func catalogLimit(n int) *int {
	if n == coachplan.Unlimited {
		return nil
	}
	return &n
}
