package coachplan

// Transition classifies a requested plan change against the current plan.
type Transition string

const (
	TransitionSame                Transition = "same"
	TransitionFresh               Transition = "fresh"
	TransitionUpgrade             Transition = "upgrade"
	TransitionDowngradeToFree     Transition = "downgrade_to_free"
	TransitionDowngradePaidToPaid Transition = "downgrade_paid_to_paid"
)

// classify compares the requested tier with the current active row.
// current may be nil.
func classify(current *Plan, requested Tier) Transition {
	currentLevel := -1
	if current != nil {
		currentLevel = current.Tier.Level()
	}
	switch reqLevel := requested.Level(); {
	case current == nil:
		return TransitionFresh
	case reqLevel == currentLevel:
		return TransitionSame
	case reqLevel > currentLevel:
		return TransitionUpgrade
	case requested == TierFree:
		return TransitionDowngradeToFree
	default:
		return TransitionDowngradePaidToPaid
	}
}

// Result is what plan reads and plan changes return to the caller.
//
// For ReadPlan, Plan is the active row. For RequestPlanChange, Plan is the
// row that was written, or the unchanged current row when nothing changed.
// PendingPlan is the coach's pending row after the operation.
type Result struct {
	Plan            *Plan
	PendingPlan     *Plan
	Pending         *Pending
	Transition      Transition
	IsUpgrade       bool
	IsDowngrade     bool
	RequiresPayment bool
	CheckoutURL     string
	Message         string
}

func newResult(plan, pending *Plan) *Result {
	r := &Result{Plan: plan, PendingPlan: pending, Pending: pending.AsPending()}
	if r.Pending != nil && r.Pending.Kind == PendingPayment {
		r.RequiresPayment = true
		r.CheckoutURL = r.Pending.CheckoutURL
	}
	return r
}
