package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/papertrade/internal/models"
)

func newTestServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_DeliversOnlyToOwner(t *testing.T) {
	h := NewHub([]string{"*"}, zerolog.Nop())
	srv := newTestServer(t, h)

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	require.Eventually(t, func() bool {
		return h.Connections("alice") == 1 && h.Connections("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.OrderFilled(models.Order{
		ID: "o1", UserID: "alice", Symbol: "ABC", Side: models.SideBuy,
		Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(10), Status: models.OrderStatusFilled,
	})

	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := alice.ReadMessage()
	require.NoError(t, err)
	var ev struct {
		Type  string `json:"type"`
		Order struct {
			ID     string `json:"id"`
			Symbol string `json:"symbol"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "order_filled", ev.Type)
	assert.Equal(t, "o1", ev.Order.ID)
	assert.Equal(t, "ABC", ev.Order.Symbol)

	bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "bob must not receive alice's execution")
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	h := NewHub([]string{"*"}, zerolog.Nop())
	srv := newTestServer(t, h)

	conn := dial(t, srv, "carol")
	require.Eventually(t, func() bool { return h.Connections("carol") == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.Connections("carol") == 0 }, 2*time.Second, 10*time.Millisecond)

	// publishing to a user without connections is a no-op
	h.Publish("carol", Event{Type: "order_filled"})
}

func TestHub_OriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"Wildcard", []string{"*"}, "http://evil.test", true},
		{"Listed", []string{"http://app.test"}, "http://app.test", true},
		{"Unlisted", []string{"http://app.test"}, "http://evil.test", false},
		{"NoOriginHeader", []string{"http://app.test"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originChecker(tt.allowed)(r))
		})
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub([]string{"*"}, zerolog.Nop())
	srv := newTestServer(t, h)

	conn := dial(t, srv, "dave")
	require.Eventually(t, func() bool { return h.Connections("dave") == 1 }, 2*time.Second, 10*time.Millisecond)

	h.Close()
	assert.Equal(t, 0, h.Connections("dave"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
