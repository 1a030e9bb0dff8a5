package mercadopago

// Preapproval statuses.
const (
	StatusPending    = "pending"
	StatusAuthorized = "authorized"
	StatusPaused     = "paused"
	StatusCancelled  = "cancelled"
)

// Notification topics sent to the webhook.
const (
	TopicPreapproval       = "subscription_preapproval"
	TopicAuthorizedPayment = "subscription_authorized_payment"
)

// Preapproval is the part of a recurring subscription the plan lifecycle
// reads back.
type Preapproval struct {
	ID                string
	Status            string
	Reason            string
	ExternalReference string
	InitPoint         string
}

// AuthorizedPayment is one recurring charge of a preapproval.
type AuthorizedPayment struct {
	ID            int64   `json:"id"`
	PreapprovalID string  `json:"preapproval_id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"transaction_amount"`
	Payment       struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	} `json:"payment"`
}

// Approved reports whether the charge was collected.
func (p *AuthorizedPayment) Approved() bool {
	return p.Payment.Status == "approved"
}
