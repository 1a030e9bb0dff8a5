package planapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fitmarket/coachplans/pkg/coachplan"
	"github.com/fitmarket/coachplans/pkg/logger"
)

// Response is the envelope of every JSON body.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail carries a stable code and tells clients whether retrying the
// same request may succeed or support has to step in.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

const (
	codeUnauthorized   = "unauthorized"
	codeInvalidRequest = "invalid_request"
)

var (
	errUnauthorized   = errors.New("coach identity is missing or invalid")
	errInvalidRequest = errors.New("request body is not valid JSON")
)

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any, meta map[string]any) {
	writeJSON(w, status, Response{Data: data, Meta: meta})
}

// writeError maps err to a status code and error detail. Internal errors are
// logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, detail := errorToDetail(err)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method), slog.String("path", r.URL.Path),
			slog.Int("status", status), logger.Error(err))
	}
	writeJSON(w, status, Response{Error: detail})
}

func errorToDetail(err error) (int, *ErrorDetail) {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, &ErrorDetail{Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, &ErrorDetail{Code: codeInvalidRequest, Message: err.Error()}
	}

	detail := &ErrorDetail{
		Code:      coachplan.ErrorCode(err),
		Retryable: coachplan.IsRetryable(err),
	}

	var status int
	switch {
	case errors.Is(err, coachplan.ErrInvalidTier), errors.Is(err, coachplan.ErrPayerEmailRequired):
		status = http.StatusBadRequest
	case errors.Is(err, coachplan.ErrSubscriptionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, coachplan.ErrNoPendingChange),
		errors.Is(err, coachplan.ErrChangeNotReversible),
		errors.Is(err, coachplan.ErrPlanNotPending):
		status = http.StatusConflict
	case errors.Is(err, coachplan.ErrPaymentNotConfigured):
		status = http.StatusServiceUnavailable
	case errors.Is(err, coachplan.ErrGatewayUnavailable):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	switch detail.Code {
	case coachplan.CodeInternal:
		detail.Message = "Something went wrong. Please try again."
	case coachplan.CodeDataIntegrity:
		detail.Message = "Your plan data needs attention. Please contact support."
	case coachplan.CodePaymentNotConfigured:
		detail.Message = "Paid plans are not available right now. Please contact support."
	case coachplan.CodeGatewayFailed:
		detail.Message = "The payment provider could not be reached. Please try again."
	default:
		detail.Message = sentinelMessage(err)
	}
	return status, detail
}

// sentinelMessage returns the message of the first coachplan sentinel in
// err's chain, dropping wrapped details that callers should not see.
func sentinelMessage(err error) string {
	for _, s := range []error{
		coachplan.ErrInvalidTier,
		coachplan.ErrPayerEmailRequired,
		coachplan.ErrPlanNotPending,
		coachplan.ErrNoPendingChange,
		coachplan.ErrChangeNotReversible,
		coachplan.ErrSubscriptionNotFound,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return err.Error()
}
