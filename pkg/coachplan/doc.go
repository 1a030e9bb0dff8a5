// Package coachplan manages the subscription plan lifecycle of marketplace
// coaches.
//
// A coach always has at most one active plan row. Tiers are ordered
// (free < basic < black < premium); moving up opens a recurring subscription
// at the payment gateway and waits for the payer to authorize it, moving down
// is scheduled for the end of the current period so the coach keeps what they
// paid for. Pending rows come in two kinds, see PendingKind.
//
// Time-based transitions are applied by the reconciler behind ReadPlan, which
// every tier-dependent surface calls, and by the Sweeper for coaches who stay
// idle.
//
//	svc := coachplan.NewService(coachplan.DefaultCatalog(), store, gateway,
//		coachplan.WithLogger(log),
//	)
//	res, err := svc.RequestPlanChange(ctx, coachplan.ChangeRequest{
//		CoachID:    coachID,
//		Tier:       coachplan.TierBasic,
//		PayerEmail: "coach@example.com",
//	})
//	if err != nil {
//		code := coachplan.ErrorCode(err) // e.g. "payment_not_configured"
//	}
//	// res.RequiresPayment, res.CheckoutURL
package coachplan
