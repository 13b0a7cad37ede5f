package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fishook/fishook/internal/chat"
)

type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

type MessagesResponse struct {
	RoomID   string         `json:"room_id"`
	Messages []chat.Message `json:"messages"`
}

// ChatStatusHandler reports the observable session state: connection status,
// active room, remote typing flag and the displayable errors for the status
// indicator and inline banners.
func (a *Api) ChatStatusHandler(w http.ResponseWriter, r *http.Request) {
	session, err := a.sessions.Session(r.Context(), ShopFromRequest(r))
	if err != nil {
		a.logger.Error(fmt.Sprintf("session: %v", err))
		WriteJsonResponseWithStatusCode(w, NewApiError("chat unavailable", http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	WriteJsonResponse(w, session.Status())
}

// RoomsHandler lists the shop's conversations from the backend.
func (a *Api) RoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.backend.Rooms(r.Context(), ShopFromRequest(r))
	if err != nil {
		a.logger.Error(fmt.Sprintf("rooms: %v", err))
		writeBackendError(w, err)
		return
	}
	WriteJsonResponse(w, rooms)
}

// SelectRoomHandler makes a room the session's active room: previous buffers
// are discarded, the room is joined and a fresh history fetch starts.
func (a *Api) SelectRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	session, err := a.sessions.Session(r.Context(), ShopFromRequest(r))
	if err != nil {
		a.logger.Error(fmt.Sprintf("session: %v", err))
		WriteJsonResponseWithStatusCode(w, NewApiError("chat unavailable", http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	if err := session.SetRoom(roomID); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError(err.Error(), http.StatusConflict), http.StatusConflict)
		return
	}
	WriteJsonResponse(w, session.Status())
}

// RoomMessagesHandler returns the merged transcript of the active room. For
// any other room it falls back to a direct backend fetch.
func (a *Api) RoomMessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	shop := ShopFromRequest(r)

	session, err := a.sessions.Session(r.Context(), shop)
	if err == nil && session.Status().RoomID == roomID {
		WriteJsonResponse(w, MessagesResponse{RoomID: roomID, Messages: session.Messages()})
		return
	}

	msgs, err := a.backend.MessageHistory(r.Context(), shop, roomID, chat.DefaultHistoryLimit)
	if err != nil {
		a.logger.Error(fmt.Sprintf("message history: %v", err))
		writeBackendError(w, err)
		return
	}
	WriteJsonResponse(w, MessagesResponse{RoomID: roomID, Messages: chat.Merge(msgs, nil)})
}

// SendMessageHandler relays a merchant message into the active room. On
// failure the client keeps its typed text and may retry; the session attaches
// an idempotency key so a retry cannot double-deliver.
func (a *Api) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req SendMessageRequest
	if err := DecodeJson(r.Body, &req); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError("invalid request body", http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError(err.Error(), http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	session, err := a.sessions.Session(r.Context(), ShopFromRequest(r))
	if err != nil {
		a.logger.Error(fmt.Sprintf("session: %v", err))
		WriteJsonResponseWithStatusCode(w, NewApiError("chat unavailable", http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	if session.Status().RoomID != roomID {
		WriteJsonResponseWithStatusCode(w, NewApiError("room is not selected", http.StatusConflict), http.StatusConflict)
		return
	}
	if err := session.Send(req.Body); err != nil {
		WriteJsonResponseWithStatusCode(w, NewApiError(err.Error(), http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// TypingHandler records one local keystroke; the session coalesces bursts.
func (a *Api) TypingHandler(w http.ResponseWriter, r *http.Request) {
	session, err := a.sessions.Session(r.Context(), ShopFromRequest(r))
	if err != nil {
		a.logger.Error(fmt.Sprintf("session: %v", err))
		WriteJsonResponseWithStatusCode(w, NewApiError("chat unavailable", http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	session.NotifyTyping()
	w.WriteHeader(http.StatusAccepted)
}

// DisableChatHandler tears down the shop's session, releasing the connection
// and every registered listener.
func (a *Api) DisableChatHandler(w http.ResponseWriter, r *http.Request) {
	a.sessions.Disable(ShopFromRequest(r))
	w.WriteHeader(http.StatusNoContent)
}
