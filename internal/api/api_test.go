package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishook/fishook/internal/backend"
	"github.com/fishook/fishook/internal/chat"
)

var testSecret = []byte("app-shared-secret")

const testShop = "teststore.myshopify.com"

type staticCredentials string

func (s staticCredentials) AccessToken(_ context.Context, _ string) (string, error) {
	return string(s), nil
}

type apiFixture struct {
	t   *testing.T
	api *Api
	// backendReqs records request bodies by path
	backendReqs map[string][]byte
	// backendHandler is swapped per test
	backendHandler http.HandlerFunc
}

func newApiFixture(t *testing.T) *apiFixture {
	f := &apiFixture{t: t, backendReqs: make(map[string][]byte)}

	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.backendReqs[r.URL.Path] = body
		if f.backendHandler != nil {
			f.backendHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(backendSrv.Close)

	credentials := staticCredentials("shpat_test")
	be := backend.NewClient(backendSrv.URL, testSecret, credentials)

	sessions := chat.NewManager(context.Background(), chat.ManagerConfig{
		// no chat backend is listening in these tests; sessions settle into
		// the error state after the bounded attempts
		URL:         "ws://127.0.0.1:1/chat",
		Secret:      testSecret,
		Credentials: credentials,
		Backend: func(shop string) chat.SessionBackend {
			return be.ForShop(shop)
		},
		MaxAttempts: 1,
		Backoff:     10 * time.Millisecond,
	})
	t.Cleanup(sessions.Close)

	f.api = NewApi(ApiConfig{
		Secret:         testSecret,
		AllowedOrigins: []string{"*"},
	}, be, sessions, nil, slog.Default())
	return f
}

func (f *apiFixture) request(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)

	token, err := NewSessionToken(testShop, time.Hour, testSecret)
	require.NoError(f.t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	f.api.Mux().ServeHTTP(w, req)
	return w
}

func TestRejectsMissingSessionToken(t *testing.T) {
	f := newApiFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/plans/", nil)
	w := httptest.NewRecorder()
	f.api.Mux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRejectsForgedSessionToken(t *testing.T) {
	f := newApiFixture(t)

	token, err := NewSessionToken(testShop, time.Hour, []byte("wrong-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/plans/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.api.Mux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPlansRelayed(t *testing.T) {
	f := newApiFixture(t)
	f.backendHandler = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]backend.Plan{
			{ID: "starter", Name: "Starter", MonthlyPrice: 9, Current: true},
		})
	}

	w := f.request(http.MethodGet, "/plans/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var plans []backend.Plan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, "starter", plans[0].ID)
}

func TestTopUpValidation(t *testing.T) {
	f := newApiFixture(t)

	w := f.request(http.MethodPost, "/billing/topup", `{"amount": -5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.request(http.MethodPost, "/billing/topup", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTopUpAttachesIdempotencyKey(t *testing.T) {
	f := newApiFixture(t)
	f.backendHandler = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.TopUpResult{Balance: 52})
	}

	w := f.request(http.MethodPost, "/billing/topup", `{"amount": 42}`)
	require.Equal(t, http.StatusOK, w.Code)

	var relayed map[string]interface{}
	require.NoError(t, json.Unmarshal(f.backendReqs["/v1/billing/topup"], &relayed))
	assert.Equal(t, float64(42), relayed["amount"])
	assert.NotEmpty(t, relayed["idempotency_key"],
		"a retried top-up must be deduplicatable by the backend")
}

func TestBackendErrorRelayed(t *testing.T) {
	f := newApiFixture(t)
	f.backendHandler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(backend.ErrorResponse{Message: "insufficient credits"})
	}

	w := f.request(http.MethodPost, "/billing/topup", `{"amount": 42}`)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient credits")
}

func TestWidgetUpdateValidation(t *testing.T) {
	f := newApiFixture(t)

	w := f.request(http.MethodPut, "/widget/", `{"accent_color": "not-a-color"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.request(http.MethodPut, "/widget/", `{"accent_color": "#aa33ff", "position": "bottom-right"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestChangePasswordValidation(t *testing.T) {
	f := newApiFixture(t)

	w := f.request(http.MethodPost, "/account/password", `{"current_password": "old", "new_password": "short"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.request(http.MethodPost, "/account/password", `{"current_password": "old", "new_password": "long enough"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestChatStatusReportsConnectionState(t *testing.T) {
	f := newApiFixture(t)

	w := f.request(http.MethodGet, "/chat/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status chat.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.NotEmpty(t, status.Connection)
}

func TestSendToUnselectedRoomConflicts(t *testing.T) {
	f := newApiFixture(t)

	w := f.request(http.MethodPost, "/chat/rooms/room-1/messages", `{"body": "hello"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDashboardRelayedWithoutCache(t *testing.T) {
	f := newApiFixture(t)
	f.backendHandler = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.Dashboard{Shop: testShop, TotalChats: 7})
	}

	w := f.request(http.MethodGet, "/analytics/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	var d backend.Dashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, 7, d.TotalChats)
}

func TestDashboardExportIsWorkbook(t *testing.T) {
	f := newApiFixture(t)
	f.backendHandler = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.Dashboard{
			Shop:       testShop,
			TotalChats: 7,
			Daily:      []backend.DashboardPoint{{Date: "2024-06-01", Chats: 3, Messages: 12}},
		})
	}

	w := f.request(http.MethodGet, "/analytics/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}
