package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishook/fishook/internal/chat"
)

var testSecret = []byte("app-shared-secret")

type staticCredentials string

func (s staticCredentials) AccessToken(_ context.Context, _ string) (string, error) {
	return string(s), nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, testSecret, staticCredentials("shpat_test"))
}

func TestClientAuthHeaders(t *testing.T) {
	var gotAuth, gotShop string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotShop = r.Header.Get("X-Fishook-Shop")
		json.NewEncoder(w).Encode([]Plan{})
	})

	_, err := c.Plans(context.Background(), "teststore.myshopify.com")
	require.NoError(t, err)

	assert.Equal(t, "teststore.myshopify.com", gotShop)

	credential, ok := cutBearer(gotAuth)
	require.True(t, ok)
	token, err := chat.DeobfuscateToken(credential, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "shpat_test", token)
}

func cutBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	return header[len(prefix):], true
}

func TestClientMessageHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/rooms/room-1/messages", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode([]chat.Message{
			{ID: "1", RoomID: "room-1", Sender: chat.SenderCustomer, Body: "hi", SentAt: time.Unix(10, 0)},
		})
	})

	msgs, err := c.MessageHistory(context.Background(), "teststore.myshopify.com", "room-1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "1", msgs[0].ID)
}

func TestClientRelaysBackendError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(ErrorResponse{Message: "insufficient credits"})
	})

	_, err := c.TopUp(context.Background(), "teststore.myshopify.com", 10, "key-1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.Status)
	assert.Equal(t, "insufficient credits", apiErr.Message)
}

func TestClientMarkReadNoBody(t *testing.T) {
	var method, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.MarkRead(context.Background(), "teststore.myshopify.com", "room-1"))
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/v1/chat/rooms/room-1/read", path)
}

func TestShopClientScoping(t *testing.T) {
	var gotShop string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotShop = r.Header.Get("X-Fishook-Shop")
		json.NewEncoder(w).Encode([]chat.Message{})
	})

	sc := c.ForShop("scoped.myshopify.com")
	_, err := sc.MessageHistory(context.Background(), "room-1", 10)
	require.NoError(t, err)
	assert.Equal(t, "scoped.myshopify.com", gotShop)
}
