package coachplan_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fitmarket/coachplans/pkg/coachplan"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateSubscription(ctx context.Context, req coachplan.SubscriptionRequest) (*coachplan.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coachplan.CheckoutSession), args.Error(1)
}

func (m *mockGateway) CancelSubscription(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}

func (m *mockGateway) UpdateSubscriptionAmount(ctx context.Context, ref string, change coachplan.AmountChange) error {
	return m.Called(ctx, ref, change).Error(0)
}

type usageFunc func(ctx context.Context, coachID uuid.UUID) (float64, error)

func (f usageFunc) StorageUsedGB(ctx context.Context, coachID uuid.UUID) (float64, error) {
	return f(ctx, coachID)
}

type fixture struct {
	svc   *coachplan.Service
	store *coachplan.MemoryStore
	gw    *mockGateway
	clock *testClock
	coach uuid.UUID
}

func newFixture(t *testing.T, opts ...coachplan.ServiceOption) *fixture {
	t.Helper()
	f := &fixture{
		store: coachplan.NewMemoryStore(),
		gw:    &mockGateway{},
		clock: &testClock{now: t0},
		coach: uuid.New(),
	}
	opts = append([]coachplan.ServiceOption{coachplan.WithClock(f.clock.Now)}, opts...)
	f.svc = coachplan.NewService(coachplan.DefaultCatalog(), f.store, f.gw, opts...)
	t.Cleanup(func() { f.gw.AssertExpectations(t) })
	return f
}

// seedActive writes an active paid or free row covering [start, start+period).
func (f *fixture) seedActive(t *testing.T, tier coachplan.Tier, start time.Time, ref string) *coachplan.Plan {
	t.Helper()
	def, err := coachplan.DefaultCatalog().Lookup(tier)
	require.NoError(t, err)
	exp := start.Add(coachplan.PeriodLength)
	p, err := f.store.Insert(context.Background(), coachplan.Plan{
		ID:              uuid.New(),
		CoachID:         f.coach,
		Tier:            tier,
		Status:          coachplan.StatusActive,
		StorageLimitGB:  def.StorageLimitGB,
		StartedAt:       start,
		ExpiresAt:       &exp,
		SubscriptionRef: ref,
		ActivatedAt:     &start,
		CreatedAt:       start,
		UpdatedAt:       start,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) rows(status coachplan.Status) []coachplan.Plan {
	var out []coachplan.Plan
	for _, p := range f.store.Plans(f.coach) {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

func (f *fixture) row(t *testing.T, id uuid.UUID) coachplan.Plan {
	t.Helper()
	for _, p := range f.store.Plans(f.coach) {
		if p.ID == id {
			return p
		}
	}
	require.FailNow(t, "row not found", id.String())
	return coachplan.Plan{}
}

// assertInvariants checks one active row at most and exact periods.
func (f *fixture) assertInvariants(t *testing.T) {
	t.Helper()
	assert.LessOrEqual(t, len(f.rows(coachplan.StatusActive)), 1, "more than one active row")
	for _, p := range f.store.Plans(f.coach) {
		if assert.NotNil(t, p.ExpiresAt) {
			assert.Equal(t, p.StartedAt.Add(coachplan.PeriodLength), *p.ExpiresAt, "period of %s", p.ID)
		}
	}
}

func session(ref string) *coachplan.CheckoutSession {
	return &coachplan.CheckoutSession{
		SubscriptionRef: ref,
		CheckoutURL:     "https://mp.example/checkout/" + ref,
	}
}

// amountChange is the update sent when a subscription moves to tier.
func amountChange(tier coachplan.Tier, price coachplan.Money) coachplan.AmountChange {
	def, _ := coachplan.DefaultCatalog().Lookup(tier)
	return coachplan.AmountChange{Tier: tier, Amount: price, Reason: def.Name + " coach plan"}
}

func brl(cents int64) coachplan.Money {
	return coachplan.Money{Amount: cents, Currency: "BRL"}
}
