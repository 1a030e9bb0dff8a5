package planapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/fitmarket/coachplans/pkg/coachplan"
	"github.com/fitmarket/coachplans/pkg/logger"
	"github.com/fitmarket/coachplans/pkg/mercadopago"
)

type notification struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// paymentWebhook accepts Mercado Pago notifications. Events that no longer
// match a pending plan are acknowledged so the provider stops retrying;
// transient failures answer 5xx so it retries later.
func (a *API) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	topic, id := parseNotification(r)
	ctx := r.Context()
	log := a.log.With(slog.String("topic", topic), slog.String("resource_id", id))

	ev, err := a.notifications.ResolveNotification(ctx, topic, id)
	switch {
	case errors.Is(err, mercadopago.ErrUnknownTopic), errors.Is(err, mercadopago.ErrMissingResource):
		log.DebugContext(ctx, "notification ignored", logger.Error(err))
		writeData(w, http.StatusOK, map[string]string{"status": "ignored"}, nil)
		return
	case err != nil:
		a.ackOrFail(w, r, log, err)
		return
	}

	if err := a.svc.HandlePaymentEvent(ctx, *ev); err != nil {
		a.ackOrFail(w, r, log.With(logger.SubscriptionRef(ev.SubscriptionRef)), err)
		return
	}

	log.InfoContext(ctx, "payment notification processed",
		slog.String("event", string(ev.Kind)), logger.SubscriptionRef(ev.SubscriptionRef))
	writeData(w, http.StatusOK, map[string]string{"status": "processed"}, nil)
}

func (a *API) ackOrFail(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if errors.Is(err, coachplan.ErrSubscriptionNotFound) || errors.Is(err, coachplan.ErrPlanNotPending) {
		log.WarnContext(r.Context(), "notification does not match a pending plan", logger.Error(err))
		writeData(w, http.StatusOK, map[string]string{"status": "ignored"}, nil)
		return
	}
	writeError(w, r, a.log, err)
}

// parseNotification reads the topic and resource id from the JSON body and
// falls back to the query string used by older notification formats.
func parseNotification(r *http.Request) (topic, id string) {
	var n notification
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&n); err == nil {
		topic = n.Type
		if topic == "" {
			topic = n.Topic
		}
		id = rawID(n.Data.ID)
	}

	q := r.URL.Query()
	if topic == "" {
		topic = q.Get("type")
	}
	if topic == "" {
		topic = q.Get("topic")
	}
	if id == "" {
		id = q.Get("data.id")
	}
	if id == "" {
		id = q.Get("id")
	}
	return topic, id
}

// rawID accepts both string and numeric ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
