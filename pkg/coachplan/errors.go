package coachplan

import "errors"

var (
	ErrInvalidTier          = errors.New("invalid plan type")
	ErrInvalidCatalog       = errors.New("invalid tier catalog")
	ErrPaymentNotConfigured = errors.New("payment gateway is not configured for this environment")
	ErrGatewayUnavailable   = errors.New("payment gateway request failed")
	ErrMissingExpiry        = errors.New("current plan has no expiry date")
	ErrPayerEmailRequired   = errors.New("payer email is required for paid plans")

	ErrPlanNotFound         = errors.New("plan not found")
	ErrActivePlanExists     = errors.New("coach already has an active plan")
	ErrPlanNotPending       = errors.New("plan is not awaiting payment")
	ErrNoPendingChange      = errors.New("no pending plan change")
	ErrChangeNotReversible  = errors.New("pending plan change cannot be reverted")
	ErrSubscriptionNotFound = errors.New("no plan found for subscription")
)

// Machine-readable codes returned to API clients.
const (
	CodeInvalidPlanType      = "invalid_plan_type"
	CodePaymentNotConfigured = "payment_not_configured"
	CodeGatewayFailed        = "payment_gateway_failed"
	CodeDataIntegrity        = "plan_data_integrity"
	CodePayerEmailRequired   = "payer_email_required"
	CodePlanNotPending       = "plan_not_pending"
	CodeNoPendingChange      = "no_pending_change"
	CodeChangeNotReversible  = "change_not_reversible"
	CodeSubscriptionNotFound = "subscription_not_found"
	CodeInternal             = "internal_error"
)

var errorCodes = []struct {
	err       error
	code      string
	retryable bool
}{
	{ErrInvalidTier, CodeInvalidPlanType, false},
	{ErrPayerEmailRequired, CodePayerEmailRequired, false},
	{ErrPaymentNotConfigured, CodePaymentNotConfigured, false},
	{ErrGatewayUnavailable, CodeGatewayFailed, true},
	{ErrMissingExpiry, CodeDataIntegrity, false},
	{ErrPlanNotPending, CodePlanNotPending, false},
	{ErrNoPendingChange, CodeNoPendingChange, false},
	{ErrChangeNotReversible, CodeChangeNotReversible, false},
	{ErrSubscriptionNotFound, CodeSubscriptionNotFound, false},
}

// ErrorCode maps err to a stable code. Unknown errors are internal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternal
}

// IsRetryable reports whether the caller may retry the same request.
// False means the request must change or support has to intervene.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.retryable
		}
	}
	return true
}
