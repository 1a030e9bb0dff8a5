package mercadopago

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyResponse   = errors.New("mercadopago: empty response body")
	ErrMissingCheckout = errors.New("mercadopago: preapproval has no init_point")
	ErrUnknownTopic    = errors.New("mercadopago: unknown notification topic")
	ErrMissingResource = errors.New("mercadopago: notification has no resource id")
)

// APIError is the error body returned by the Mercado Pago API.
type APIError struct {
	Status  int          `json:"status"`
	Code    string       `json:"error"`
	Message string       `json:"message"`
	Causes  []ErrorCause `json:"cause,omitempty"`
}

type ErrorCause struct {
	Code        any    `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mercadopago: status %d", e.Status)
	}
	return fmt.Sprintf("mercadopago: status %d: %s (%s)", e.Status, e.Message, e.Code)
}
