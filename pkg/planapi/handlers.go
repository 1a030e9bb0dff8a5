package planapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/fitmarket/coachplans/pkg/coachplan"
)

func (a *API) listTiers(w http.ResponseWriter, _ *http.Request) {
	defs := a.svc.Catalog().All()
	out := make([]tierDTO, 0, len(defs))
	for _, def := range defs {
		out = append(out, a.toTier(def))
	}
	writeData(w, http.StatusOK, out, map[string]any{"period_days": int(coachplan.PeriodLength.Hours() / 24)})
}

func (a *API) readPlan(w http.ResponseWriter, r *http.Request, coachID uuid.UUID) {
	res, err := a.svc.ReadPlan(r.Context(), coachID)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, http.StatusOK, a.toResult(res), nil)
}

func (a *API) changePlan(w http.ResponseWriter, r *http.Request, coachID uuid.UUID) {
	var req changeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, a.log, errors.Join(errInvalidRequest, err))
		return
	}

	tier, err := coachplan.ParseTier(req.PlanType)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}

	res, err := a.svc.RequestPlanChange(r.Context(), coachplan.ChangeRequest{
		CoachID:    coachID,
		Tier:       tier,
		PayerEmail: req.PayerEmail,
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, http.StatusOK, a.toResult(res), nil)
}

func (a *API) cancelPending(w http.ResponseWriter, r *http.Request, coachID uuid.UUID) {
	res, err := a.svc.CancelPendingChange(r.Context(), coachID)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, http.StatusOK, a.toResult(res), nil)
}

func (a *API) entitlements(w http.ResponseWriter, r *http.Request, coachID uuid.UUID) {
	e, err := a.svc.Entitlements(r.Context(), coachID)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeData(w, http.StatusOK, toEntitlements(e), nil)
}
