package mercadopago

import (
	"context"
	"errors"
	"net/url"

	"github.com/mercadopago/sdk-go/pkg/preapproval"

	"github.com/fitmarket/coachplans/pkg/coachplan"
)

// CreateSubscription opens a monthly preapproval in pending state. The payer
// authorizes it at the returned init_point.
func (c *Client) CreateSubscription(ctx context.Context, req coachplan.SubscriptionRequest) (*coachplan.CheckoutSession, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	pa, err := c.preapprovals.Create(ctx, preapproval.Request{
		Reason:            req.Reason,
		ExternalReference: req.CoachID.String(),
		PayerEmail:        req.PayerEmail,
		BackURL:           c.cfg.BackURL,
		Status:            StatusPending,
		AutoRecurring: &preapproval.AutoRecurringRequest{
			Frequency:         1,
			FrequencyType:     "months",
			TransactionAmount: req.Amount.Major(),
			CurrencyID:        c.currency(req.Amount),
		},
	})
	if err != nil {
		return nil, sdkError(err)
	}
	if pa.InitPoint == "" || pa.ID == "" {
		return nil, errors.Join(coachplan.ErrGatewayUnavailable, ErrMissingCheckout)
	}
	return &coachplan.CheckoutSession{SubscriptionRef: pa.ID, CheckoutURL: pa.InitPoint}, nil
}

// CancelSubscription stops future charges of the preapproval.
func (c *Client) CancelSubscription(ctx context.Context, ref string) error {
	return c.update(ctx, ref, preapproval.UpdateRequest{Status: StatusCancelled})
}

// UpdateSubscriptionAmount changes the recurring amount charged from the
// next cycle on, together with the description the payer sees.
func (c *Client) UpdateSubscriptionAmount(ctx context.Context, ref string, change coachplan.AmountChange) error {
	return c.update(ctx, ref, preapproval.UpdateRequest{
		Reason: change.Reason,
		AutoRecurring: &preapproval.AutoRecurringUpdateRequest{
			TransactionAmount: change.Amount.Major(),
			CurrencyID:        c.currency(change.Amount),
		},
	})
}

func (c *Client) update(ctx context.Context, ref string, req preapproval.UpdateRequest) error {
	if err := c.ready(); err != nil {
		return err
	}
	if _, err := c.preapprovals.Update(ctx, ref, req); err != nil {
		return sdkError(err)
	}
	return nil
}

func (c *Client) GetPreapproval(ctx context.Context, id string) (*Preapproval, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	pa, err := c.preapprovals.Get(ctx, id)
	if err != nil {
		return nil, sdkError(err)
	}
	return &Preapproval{
		ID:                pa.ID,
		Status:            pa.Status,
		Reason:            pa.Reason,
		ExternalReference: pa.ExternalReference,
		InitPoint:         pa.InitPoint,
	}, nil
}

func (c *Client) GetAuthorizedPayment(ctx context.Context, id string) (*AuthorizedPayment, error) {
	var p AuthorizedPayment
	if err := c.get(ctx, "/authorized_payments/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) currency(m coachplan.Money) string {
	if m.Currency != "" {
		return m.Currency
	}
	return c.cfg.Currency
}
