package api

import (
	"fmt"
	"net/http"

	"github.com/fishook/fishook/internal/backend"
)

type UpdateWidgetRequest struct {
	Enabled         bool   `json:"enabled"`
	AccentColor     string `json:"accent_color" validate:"omitempty,hexcolor"`
	Position        string `json:"position" validate:"omitempty,oneof=bottom-left bottom-right"`
	WelcomeMessage  string `json:"welcome_message" validate:"max=500"`
	OfflineMessage  string `json:"offline_message" validate:"max=500"`
	ShowAgentAvatar bool   `json:"show_agent_avatar"`
	CollectEmail    bool   `json:"collect_email"`
}

func (a *Api) WidgetHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := a.backend.WidgetSettings(r.Context(), ShopFromRequest(r))
	if err != nil {
		a.logger.Error(fmt.Sprintf("widget settings: %v", err))
		writeBackendError(w, err)
		return
	}
	WriteJsonResponse(w, settings)
}

func (a *Api) UpdateWidgetHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateWidgetRequest
	if err := DecodeJson(r.Body, &req); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError("invalid request body", http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError(err.Error(), http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	settings := backend.WidgetSettings{
		Enabled:         req.Enabled,
		AccentColor:     req.AccentColor,
		Position:        req.Position,
		WelcomeMessage:  req.WelcomeMessage,
		OfflineMessage:  req.OfflineMessage,
		ShowAgentAvatar: req.ShowAgentAvatar,
		CollectEmail:    req.CollectEmail,
	}
	if err := a.backend.UpdateWidgetSettings(r.Context(), ShopFromRequest(r), settings); err != nil {
		a.logger.Error(fmt.Sprintf("update widget settings: %v", err))
		writeBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
