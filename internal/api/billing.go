package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

type SelectPlanRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

type TopUpRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (a *Api) PlansHandler(w http.ResponseWriter, r *http.Request) {
	plans, err := a.backend.Plans(r.Context(), ShopFromRequest(r))
	if err != nil {
		a.logger.Error(fmt.Sprintf("plans: %v", err))
		writeBackendError(w, err)
		return
	}
	WriteJsonResponse(w, plans)
}

func (a *Api) SelectPlanHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectPlanRequest
	if err := DecodeJson(r.Body, &req); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError("invalid request body", http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError(err.Error(), http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := a.backend.SelectPlan(r.Context(), ShopFromRequest(r), req.PlanID); err != nil {
		a.logger.Error(fmt.Sprintf("select plan: %v", err))
		writeBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TopUpHandler relays a credit top-up. Each relay carries a fresh idempotency
// key so the backend can deduplicate a retried charge.
func (a *Api) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	var req TopUpRequest
	if err := DecodeJson(r.Body, &req); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError("invalid request body", http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError(err.Error(), http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := a.backend.TopUp(r.Context(), ShopFromRequest(r), req.Amount, uuid.New().String())
	if err != nil {
		a.logger.Error(fmt.Sprintf("topup: %v", err))
		writeBackendError(w, err)
		return
	}
	WriteJsonResponse(w, result)
}

// ChangePasswordHandler relays a password change to the backend. Passwords
// are never stored or logged here.
func (a *Api) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := DecodeJson(r.Body, &req); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError("invalid request body", http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError(err.Error(), http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := a.backend.ChangePassword(r.Context(), ShopFromRequest(r), req.CurrentPassword, req.NewPassword); err != nil {
		a.logger.Error("change password failed")
		writeBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
