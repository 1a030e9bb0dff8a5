package mercadopago

import (
	"context"

	"github.com/fitmarket/coachplans/pkg/coachplan"
)

// ResolveNotification fetches the resource a webhook points at and turns it
// into a plan event. Notifications are never trusted for state; the current
// resource is always read back from the API.
func (c *Client) ResolveNotification(ctx context.Context, topic, id string) (*coachplan.PaymentEvent, error) {
	if id == "" {
		return nil, ErrMissingResource
	}

	switch topic {
	case TopicPreapproval:
		pa, err := c.GetPreapproval(ctx, id)
		if err != nil {
			return nil, err
		}
		if pa.Status != StatusAuthorized {
			return &coachplan.PaymentEvent{Kind: coachplan.EventIgnored, SubscriptionRef: pa.ID}, nil
		}
		return &coachplan.PaymentEvent{Kind: coachplan.EventSubscriptionAuthorized, SubscriptionRef: pa.ID}, nil

	case TopicAuthorizedPayment:
		p, err := c.GetAuthorizedPayment(ctx, id)
		if err != nil {
			return nil, err
		}
		if !p.Approved() {
			return &coachplan.PaymentEvent{Kind: coachplan.EventIgnored, SubscriptionRef: p.PreapprovalID}, nil
		}
		return &coachplan.PaymentEvent{Kind: coachplan.EventPaymentApproved, SubscriptionRef: p.PreapprovalID}, nil
	}

	return nil, ErrUnknownTopic
}
