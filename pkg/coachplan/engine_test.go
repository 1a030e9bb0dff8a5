package coachplan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fitmarket/coachplans/pkg/coachplan"
	"github.com/fitmarket/coachplans/pkg/validator"
)

const payer = "coach@example.com"

func TestNewService_PanicsOnMissingDependencies(t *testing.T) {
	t.Parallel()

	store := coachplan.NewMemoryStore()
	gw := &mockGateway{}
	catalog := coachplan.DefaultCatalog()

	assert.Panics(t, func() { coachplan.NewService(nil, store, gw) })
	assert.Panics(t, func() { coachplan.NewService(catalog, nil, gw) })
	assert.Panics(t, func() { coachplan.NewService(catalog, store, nil) })
	assert.NotPanics(t, func() { coachplan.NewService(catalog, store, gw) })
}

func TestRequestPlanChange_InvalidTier(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.RequestPlanChange(context.Background(), coachplan.ChangeRequest{
		CoachID: f.coach,
		Tier:    "gold",
	})
	require.ErrorIs(t, err, coachplan.ErrInvalidTier)
	assert.Equal(t, "invalid_plan_type", coachplan.ErrorCode(err))
	assert.Empty(t, f.store.Plans(f.coach), "no state may be touched")
}

func TestRequestPlanChange_UpgradeFromFree(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReadPlan(ctx, f.coach)
	require.NoError(t, err)

	f.gw.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(r coachplan.SubscriptionRequest) bool {
		return r.CoachID == f.coach && r.Tier == coachplan.TierBasic &&
			r.Amount == brl(4990) && r.PayerEmail == payer
	})).Return(session("pre_basic"), nil).Once()

	res, err := f.svc.RequestPlanChange(ctx, coachplan.ChangeRequest{
		CoachID: f.coach, Tier: coachplan.TierBasic, PayerEmail: payer,
	})
	require.NoError(t, err)

	assert.Equal(t, coachplan.TransitionUpgrade, res.Transition)
	assert.True(t, res.IsUpgrade)
	assert.False(t, res.IsDowngrade)
	assert.True(t, res.RequiresPayment)
	assert.Equal(t, "https://mp.example/checkout/pre_basic", res.CheckoutURL)
	assert.NotEmpty(t, res.Message)

	require.NotNil(t, res.Plan)
	assert.Equal(t, coachplan.StatusTrial, res.Plan.Status)
	assert.Equal(t, coachplan.TierBasic, res.Plan.Tier)
	assert.Equal(t, t0, res.Plan.StartedAt)
	assert.Equal(t, t0.Add(coachplan.PeriodLength), *res.Plan.ExpiresAt)
	assert.Equal(t, "pre_basic", res.Plan.SubscriptionRef)
	assert.Equal(t, float64(10), res.Plan.StorageLimitGB)

	require.NotNil(t, res.Pending)
	assert.Equal(t, coachplan.PendingPayment, res.Pending.Kind)
	assert.Equal(t, res.CheckoutURL, res.Pending.CheckoutURL)

	// free plan stays in force until payment is confirmed
	read, err := f.svc.ReadPlan(ctx, f.coach)
	require.NoError(t, err)
	assert.Equal(t, coachplan.TierFree, read.Plan.Tier)
	require.NotNil(t, read.PendingPlan)
	assert.Equal(t, res.Plan.ID, read.PendingPlan.ID)
	assert.True(t, read.RequiresPayment)

	f.assertInvariants(t)
}

func TestRequestPlanChange_FreshCoach(t *testing.T) {
	t.Parallel()

	t.Run("paid tier awaits payment", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.gw.On("CreateSubscription", mock.Anything, mock.Anything).Return(session("pre_1"), nil).Once()

		res, err := f.svc.RequestPlanChange(context.Background(), coachplan.ChangeRequest{
			CoachID: f.coach, Tier: coachplan.TierBlack, PayerEmail: payer,
		})
		require.NoError(t, err)
		assert.Equal(t, coachplan.TransitionFresh, res.Transition)
		assert.False(t, res.IsUpgrade)
		assert.True(t, res.RequiresPayment)
		assert.Equal(t, coachplan.StatusTrial, res.Plan.Status)
		assert.Empty(t, f.rows(coachplan.StatusActive))
		f.assertInvariants(t)
	})

	t.Run("free tier is active immediately", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		res, err := f.svc.RequestPlanChange(context.Background(), coachplan.ChangeRequest{
			CoachID: f.coach, Tier: coachplan.TierFree,
		})
		require.NoError(t, err)
		assert.Equal(t, coachplan.TransitionFresh, res.Transition)
		assert.False(t, res.RequiresPayment)
		assert.Equal(t, coachplan.StatusActive, res.Plan.Status)
		assert.Equal(t, t0, res.Plan.StartedAt)
		f.assertInvariants(t)
	})
}

func TestRequestPlanChange_GatewayFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		gwErr     error
		wantErr   error
		code      string
		retryable bool
	}{
		{
			name:      "not configured",
			gwErr:     coachplan.ErrPaymentNotConfigured,
			wantErr:   coachplan.ErrPaymentNotConfigured,
			code:      "payment_not_configured",
			retryable: false,
		},
		{
			name:      "upstream failure",
			gwErr:     errors.Join(coachplan.ErrGatewayUnavailable, errors.New("502 bad gateway")),
			wantErr:   coachplan.ErrGatewayUnavailable,
			code:      "payment_gateway_failed",
			retryable: true,
		},
		{
			name:      "unclassified error",
			gwErr:     errors.New("dial tcp: timeout"),
			wantErr:   coachplan.ErrGatewayUnavailable,
			code:      "payment_gateway_failed",
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.svc.ReadPlan(ctx, f.coach)
			require.NoError(t, err)

			f.gw.On("CreateSubscription", mock.Anything, mock.Anything).Return(nil, tt.gwErr).Once()

			res, err := f.svc.RequestPlanChange(ctx, coachplan.ChangeRequest{
				CoachID: f.coach, Tier: coachplan.TierPremium, PayerEmail: payer,
			})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Equal(t, tt.code, coachplan.ErrorCode(err))
			assert.Equal(t, tt.retryable, coachplan.IsRetryable(err))

			assert.Len(t, f.store.Plans(f.coach), 1, "no row may be written")
			assert.Empty(t, f.rows(coachplan.StatusTrial))
		})
	}
}

func TestRequestPlanChange_PayerEmailRequired(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, email := range []string{"", "not-an-email", "Ana <ana@example.com>", "coach@localhost"} {
		_, err := f.svc.RequestPlanChange(context.Background(), coachplan.ChangeRequest{
			CoachID: f.coach, Tier: coachplan.TierBasic, PayerEmail: email,
		})
		require.ErrorIs(t, err, coachplan.ErrPayerEmailRequired, email)
		assert.True(t, validator.ExtractValidationErrors(err).Has("payer_email"), email)
	}
	f.gw.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
	assert.Empty(t, f.rows(coachplan.StatusTrial))
}

func TestRequestPlanChange_SameTierIsNoop(t *testing.T) {
	t.Parallel()

	t.Run("free", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()

		first, err := f.svc.ReadPlan(ctx, f.coach)
		require.NoError(t, err)

		req := coachplan.ChangeRequest{CoachID: f.coach, Tier: coachplan.TierFree}
		a, err := f.svc.RequestPlanChange(ctx, req)
		require.NoError(t, err)
		b, err := f.svc.RequestPlanChange(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, first.Plan.ID, a.Plan.ID)
		assert.Equal(t, a.Plan.ID, b.Plan.ID)
		assert.Equal(t, coachplan.TransitionSame, b.Transition)
		assert.False(t, b.IsUpgrade)
		assert.False(t, b.IsDowngrade)
		assert.False(t, b.RequiresPayment)
		assert.Contains(t, b.Message, "already")
		assert.Len(t, f.store.Plans(f.coach), 1)
	})

	t.Run("paid", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		current := f.seedActive(t, coachplan.TierBlack, t0.AddDate(0, 0, -3), "pre_black")

		res, err := f.svc.RequestPlanChange(context.Background(), coachplan.ChangeRequest{
			CoachID: f.coach, Tier: coachplan.TierBlack, PayerEmail: payer,
		})
		require.NoError(t, err)
		assert.Equal(t, current.ID, res.Plan.ID)
		assert.Len(t, f.store.Plans(f.coach), 1)
	})
}

func TestRequestPlanChange_DowngradePaidToPaid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.clock.Set(day(2025, time.January, 1))
	current := f.seedActive(t, coachplan.TierPremium, day(2024, time.December, 10), "pre_premium")
	require.Equal(t, day(2025, time.January, 10), *current.ExpiresAt)

	f.gw.On("UpdateSubscriptionAmount", mock.Anything, "pre_premium", amountChange(coachplan.TierBasic, brl(4990))).
		Return(nil).Once()

	res, err := f.svc.RequestPlanChange(context.Background(), coachplan.ChangeRequest{
		CoachID: f.coach, Tier: coachplan.TierBasic,
	})
	require.NoError(t, err)

	assert.Equal(t, coachplan.TransitionDowngradePaidToPaid, res.Transition)
	assert.True(t, res.IsDowngrade)
	assert.False(t, res.IsUpgrade)
	assert.False(t, res.RequiresPayment)

	p := res.Plan
	assert.Equal(t, coachplan.StatusTrial, p.Status)
	assert.Equal(t, day(2025, time.January, 10), p.StartedAt)
	assert.Equal(t, *current.ExpiresAt, p.StartedAt, "no gap and no overlap")
	assert.Equal(t, day(2025, time.February, 10), *p.ExpiresAt)
	assert.Empty(t, p.SubscriptionRef, "reference is carried forward at promotion")

	require.NotNil(t, res.Pending)
	assert.Equal(t, coachplan.ScheduledTransition, res.Pending.Kind)
	assert.Equal(t, p.StartedAt, res.Pending.ActivatesAt)
	assert.Contains(t, res.Message, "2025-01-10")

	assert.Equal(t, coachplan.StatusActive, f.row(t, current.ID).Status, "current plan keeps running")
	f.assertInvariants(t)
}

func TestRequestPlanChange_DowngradeToFree(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	current := f.seedActive(t, coachplan.TierBasic, t0.AddDate(0, 0, -10), "pre_basic")

	f.gw.On("CancelSubscription", mock.Anything, "pre_basic").Return(nil).Once()

	res, err := f.svc.RequestPlanChange(context.Background(), coachplan.ChangeRequest{
		CoachID: f.coach, Tier: coachplan.TierFree,
	})
	require.NoError(t, err)

	assert.Equal(t, coachplan.TransitionDowngradeToFree, res.Transition)
	assert.True(t, res.IsDowngrade)
	assert.Equal(t, coachplan.StatusTrial, res.Plan.Status)
	assert.Equal(t, *current.ExpiresAt, res.Plan.StartedAt)
	assert.Zero(t, res.Plan.RenewalCount)
	assert.Equal(t, float64(1), res.Plan.StorageLimitGB)
	f.assertInvariants(t)
}

func TestRequestPlanChange_DowngradeGatewayFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	t.Run("cancel fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seedActive(t, coachplan.TierBasic, t0.AddDate(0, 0, -10), "pre_basic")
		f.gw.On("CancelSubscription", mock.Anything, "pre_basic").
			Return(coachplan.ErrGatewayUnavailable).Once()

		res, err := f.svc.RequestPlanChange(context.Background(), coachplan.ChangeRequest{
			CoachID: f.coach, Tier: coachplan.TierFree,
		})
		require.NoError(t, err)
		assert.Equal(t, coachplan.StatusTrial, res.Plan.Status)
		assert.Len(t, f.rows(coachplan.StatusTrial), 1)
	})

	t.Run("amount update fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.seedActive(t, coachplan.TierPremium, t0.AddDate(0, 0, -10), "pre_premium")
		f.gw.On("UpdateSubscriptionAmount", mock.Anything, "pre_premium", amountChange(coachplan.TierBlack, brl(9990))).
			Return(coachplan.ErrPaymentNotConfigured).Once()

		res, err := f.svc.RequestPlanChange(context.Background(), coachplan.ChangeRequest{
			CoachID: f.coach, Tier: coachplan.TierBlack,
		})
		require.NoError(t, err)
		assert.Equal(t, coachplan.TierBlack, res.Plan.Tier)
		assert.Len(t, f.rows(coachplan.StatusTrial), 1)
	})
}

func TestRequestPlanChange_DowngradeWithoutExpiry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.store.Insert(context.Background(), coachplan.Plan{
		CoachID:         f.coach,
		Tier:            coachplan.TierPremium,
		Status:          coachplan.StatusActive,
		StartedAt:       t0.AddDate(0, 0, -5),
		SubscriptionRef: "pre_premium",
	})
	require.NoError(t, err)

	_, err = f.svc.RequestPlanChange(context.Background(), coachplan.ChangeRequest{
		CoachID: f.coach, Tier: coachplan.TierBasic,
	})
	require.ErrorIs(t, err, coachplan.ErrMissingExpiry)
	assert.Equal(t, "plan_data_integrity", coachplan.ErrorCode(err))
	assert.False(t, coachplan.IsRetryable(err))
	assert.Empty(t, f.rows(coachplan.StatusTrial))
}

func TestRequestPlanChange_NewRequestSupersedesPending(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReadPlan(ctx, f.coach)
	require.NoError(t, err)

	f.gw.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(r coachplan.SubscriptionRequest) bool {
		return r.Tier == coachplan.TierBasic
	})).Return(session("pre_basic"), nil).Once()
	f.gw.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(r coachplan.SubscriptionRequest) bool {
		return r.Tier == coachplan.TierBlack
	})).Return(session("pre_black"), nil).Once()
	f.gw.On("CancelSubscription", mock.Anything, "pre_basic").Return(nil).Once()

	first, err := f.svc.RequestPlanChange(ctx, coachplan.ChangeRequest{CoachID: f.coach, Tier: coachplan.TierBasic, PayerEmail: payer})
	require.NoError(t, err)

	again, err := f.svc.RequestPlanChange(ctx, coachplan.ChangeRequest{CoachID: f.coach, Tier: coachplan.TierBasic, PayerEmail: payer})
	require.NoError(t, err)
	assert.Equal(t, first.Plan.ID, again.Plan.ID, "same pending tier is a no-op")
	assert.Equal(t, first.CheckoutURL, again.CheckoutURL)

	second, err := f.svc.RequestPlanChange(ctx, coachplan.ChangeRequest{CoachID: f.coach, Tier: coachplan.TierBlack, PayerEmail: payer})
	require.NoError(t, err)
	assert.Equal(t, coachplan.TierBlack, second.Plan.Tier)

	assert.Equal(t, coachplan.StatusCancelled, f.row(t, first.Plan.ID).Status)
	trials := f.rows(coachplan.StatusTrial)
	require.Len(t, trials, 1)
	assert.Equal(t, second.Plan.ID, trials[0].ID)
	f.assertInvariants(t)
}

func TestRequestPlanChange_UpgradeReplacesScheduledDowngrade(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.seedActive(t, coachplan.TierBlack, t0.AddDate(0, 0, -10), "pre_black")

	f.gw.On("UpdateSubscriptionAmount", mock.Anything, "pre_black", amountChange(coachplan.TierBasic, brl(4990))).Return(nil).Once()
	f.gw.On("CreateSubscription", mock.Anything, mock.Anything).Return(session("pre_premium"), nil).Once()
	// the running subscription gets its full price back until the upgrade is paid
	f.gw.On("UpdateSubscriptionAmount", mock.Anything, "pre_black", amountChange(coachplan.TierBlack, brl(9990))).Return(nil).Once()

	down, err := f.svc.RequestPlanChange(ctx, coachplan.ChangeRequest{CoachID: f.coach, Tier: coachplan.TierBasic})
	require.NoError(t, err)

	up, err := f.svc.RequestPlanChange(ctx, coachplan.ChangeRequest{CoachID: f.coach, Tier: coachplan.TierPremium, PayerEmail: payer})
	require.NoError(t, err)
	assert.True(t, up.IsUpgrade)

	assert.Equal(t, coachplan.StatusCancelled, f.row(t, down.Plan.ID).Status)
	require.Len(t, f.rows(coachplan.StatusTrial), 1)
}

func TestRequestPlanChange_FreeAfterLapsedPaidPlan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	old := f.seedActive(t, coachplan.TierBasic, t0, "pre_basic")
	f.clock.Set(old.ExpiresAt.Add(time.Hour))
	f.gw.On("CancelSubscription", mock.Anything, "pre_basic").Return(nil).Once()

	res, err := f.svc.RequestPlanChange(ctx, coachplan.ChangeRequest{CoachID: f.coach, Tier: coachplan.TierFree})
	require.NoError(t, err)
	assert.Equal(t, coachplan.TransitionFresh, res.Transition)
	assert.Equal(t, coachplan.TierFree, res.Plan.Tier)
	assert.Equal(t, coachplan.StatusActive, res.Plan.Status)
	assert.Equal(t, old.ExpiresAt.Add(time.Hour), res.Plan.StartedAt)
	assert.Equal(t, coachplan.StatusExpired, f.row(t, old.ID).Status)

	read, err := f.svc.ReadPlan(ctx, f.coach)
	require.NoError(t, err)
	assert.Equal(t, res.Plan.ID, read.Plan.ID)
	f.assertInvariants(t)
}

// trialInsertFailStore rejects pending rows once armed.
type trialInsertFailStore struct {
	*coachplan.MemoryStore
	armed bool
}

func (s *trialInsertFailStore) Insert(ctx context.Context, p coachplan.Plan) (*coachplan.Plan, error) {
	if s.armed && p.Status == coachplan.StatusTrial {
		return nil, errors.New("insert failed")
	}
	return s.MemoryStore.Insert(ctx, p)
}

func TestRequestPlanChange_FailedWriteKeepsPendingPlan(t *testing.T) {
	t.Parallel()

	store := &trialInsertFailStore{MemoryStore: coachplan.NewMemoryStore()}
	gw := &mockGateway{}
	clock := &testClock{now: t0}
	svc := coachplan.NewService(coachplan.DefaultCatalog(), store, gw, coachplan.WithClock(clock.Now))
	coach := uuid.New()
	ctx := context.Background()

	gw.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(r coachplan.SubscriptionRequest) bool {
		return r.Tier == coachplan.TierBasic
	})).Return(session("pre_basic"), nil).Once()
	gw.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(r coachplan.SubscriptionRequest) bool {
		return r.Tier == coachplan.TierBlack
	})).Return(session("pre_black"), nil).Once()
	// only the subscription without a row is withdrawn
	gw.On("CancelSubscription", mock.Anything, "pre_black").Return(nil).Once()

	first, err := svc.RequestPlanChange(ctx, coachplan.ChangeRequest{CoachID: coach, Tier: coachplan.TierBasic, PayerEmail: payer})
	require.NoError(t, err)

	store.armed = true
	_, err = svc.RequestPlanChange(ctx, coachplan.ChangeRequest{CoachID: coach, Tier: coachplan.TierBlack, PayerEmail: payer})
	require.Error(t, err)

	res, err := svc.ReadPlan(ctx, coach)
	require.NoError(t, err)
	require.NotNil(t, res.PendingPlan)
	assert.Equal(t, first.Plan.ID, res.PendingPlan.ID)
	assert.Equal(t, coachplan.StatusTrial, res.PendingPlan.Status)
	gw.AssertExpectations(t)
}
