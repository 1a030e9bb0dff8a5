package coachplan

import (
	"context"

	"github.com/google/uuid"
)

// PaymentGateway manages the external recurring subscription behind a paid
// tier. Every method returns ErrPaymentNotConfigured when credentials are
// missing and ErrGatewayUnavailable for transport or provider failures.
type PaymentGateway interface {
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*CheckoutSession, error)
	CancelSubscription(ctx context.Context, ref string) error
	UpdateSubscriptionAmount(ctx context.Context, ref string, change AmountChange) error
}

// SubscriptionRequest carries what the gateway needs to open a subscription.
type SubscriptionRequest struct {
	CoachID    uuid.UUID
	Tier       Tier
	PayerEmail string
	Amount     Money
	Reason     string
}

// AmountChange moves an existing subscription to another paid tier from its
// next charge on. Reason replaces the description shown to the payer.
type AmountChange struct {
	Tier   Tier
	Amount Money
	Reason string
}

// CheckoutSession is a newly created subscription awaiting authorization.
type CheckoutSession struct {
	SubscriptionRef string
	CheckoutURL     string
}

// UsageReader reports a coach's current storage consumption. Storage
// accounting lives outside this package.
type UsageReader interface {
	StorageUsedGB(ctx context.Context, coachID uuid.UUID) (float64, error)
}
