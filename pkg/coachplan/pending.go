package coachplan

import "time"

// PendingKind distinguishes the two meanings of a trial row.
type PendingKind string

const (
	// PendingPayment waits for the payer to authorize a new subscription.
	PendingPayment PendingKind = "pending_payment"
	// ScheduledTransition starts by itself at ActivatesAt.
	ScheduledTransition PendingKind = "scheduled_transition"
)

// Pending is the typed view of a trial row. Only the fields relevant to
// Kind are set.
type Pending struct {
	Kind        PendingKind
	Plan        *Plan
	CheckoutURL string    // PendingPayment
	ActivatesAt time.Time // ScheduledTransition
}

// PendingKind classifies a trial row. Rows awaiting payment carry the new
// subscription reference; scheduled rows never do until promotion.
func (p *Plan) PendingKind() PendingKind {
	if p.SubscriptionRef != "" {
		return PendingPayment
	}
	return ScheduledTransition
}

// AsPending returns the typed view of a trial row, or nil for any other row.
func (p *Plan) AsPending() *Pending {
	if p == nil || p.Status != StatusTrial {
		return nil
	}
	switch p.PendingKind() {
	case PendingPayment:
		return &Pending{Kind: PendingPayment, Plan: p, CheckoutURL: p.CheckoutURL}
	default:
		return &Pending{Kind: ScheduledTransition, Plan: p, ActivatesAt: p.StartedAt}
	}
}
