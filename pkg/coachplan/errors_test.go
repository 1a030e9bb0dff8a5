package coachplan_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fitmarket/coachplans/pkg/coachplan"
)

func TestErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		code      string
		retryable bool
	}{
		{coachplan.ErrInvalidTier, "invalid_plan_type", false},
		{coachplan.ErrPaymentNotConfigured, "payment_not_configured", false},
		{errors.Join(coachplan.ErrGatewayUnavailable, errors.New("503")), "payment_gateway_failed", true},
		{fmt.Errorf("%w: plan x", coachplan.ErrMissingExpiry), "plan_data_integrity", false},
		{coachplan.ErrNoPendingChange, "no_pending_change", false},
		{coachplan.ErrChangeNotReversible, "change_not_reversible", false},
		{coachplan.ErrSubscriptionNotFound, "subscription_not_found", false},
		{coachplan.ErrPayerEmailRequired, "payer_email_required", false},
		{errors.New("connection reset"), "internal_error", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, coachplan.ErrorCode(tt.err), tt.err.Error())
		assert.Equal(t, tt.retryable, coachplan.IsRetryable(tt.err), tt.err.Error())
	}

	assert.Empty(t, coachplan.ErrorCode(nil))
	assert.False(t, coachplan.IsRetryable(nil))
}

func TestErrorCode_NotConfiguredWinsOverGatewayFailure(t *testing.T) {
	t.Parallel()

	err := errors.Join(coachplan.ErrGatewayUnavailable, coachplan.ErrPaymentNotConfigured)
	assert.Equal(t, "payment_not_configured", coachplan.ErrorCode(err))
	assert.False(t, coachplan.IsRetryable(err))
}
