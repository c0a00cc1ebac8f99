package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopyFabric/internal/domain/models"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubStreamsReports(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	all := dial(t, srv, "")
	onlyM2 := dial(t, srv, "?master_id=m2")
	waitClients(t, hub, 2)

	reports := []models.ExecutionReport{
		{MasterID: "m1", MasterTicket: 1, FollowerID: "f1", Result: models.TradeResult{Status: models.StatusSuccess}},
		{MasterID: "m2", MasterTicket: 2, FollowerID: "f2", Result: models.TradeResult{Status: models.StatusFailed}},
	}
	require.NoError(t, hub.Record(context.Background(), reports))

	var got models.ExecutionReport
	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, "m1", got.MasterID)
	require.NoError(t, all.ReadJSON(&got))
	assert.Equal(t, "m2", got.MasterID)

	_ = onlyM2.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, onlyM2.ReadJSON(&got))
	assert.Equal(t, "m2", got.MasterID)
	assert.Equal(t, int64(2), got.MasterTicket)
}

func TestHubForgetsClosedClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, hub, 1)
	_ = conn.Close()
	waitClients(t, hub, 0)
	assert.NoError(t, hub.Record(context.Background(), []models.ExecutionReport{{MasterID: "m"}}))
}
