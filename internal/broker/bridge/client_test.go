package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopyFabric/internal/domain/models"
)

type seen struct {
	capability string
	body       call
}

func sidecar(t *testing.T, reply func(capability string, body call) any) (*httptest.Server, *[]seen) {
	t.Helper()
	calls := make([]seen, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body call
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		capability := strings.TrimPrefix(r.URL.Path, "/terminal/")
		calls = append(calls, seen{capability: capability, body: body})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply(capability, body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestBridgeCarriesPathAndDecodes(t *testing.T) {
	srv, calls := sidecar(t, func(capability string, body call) any {
		switch capability {
		case "account_info":
			return map[string]any{"ok": true, "data": map[string]any{"login": 42, "margin_free": 1000.5, "leverage": 500}}
		case "symbol_select":
			return map[string]any{"ok": true, "data": body.Symbol == "EURUSD"}
		case "positions_get":
			return map[string]any{"ok": true, "data": []map[string]any{{"ticket": 9, "symbol": "EURUSD", "volume": 0.2}}}
		}
		return map[string]any{"ok": true}
	})

	term := New(srv.URL, `C:\MT5\terminal_5\terminal64.exe`)
	ctx := context.Background()
	require.NoError(t, term.Initialize(ctx, ""))

	acct, err := term.AccountInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), acct.Login)
	assert.Equal(t, 1000.5, acct.FreeMargin)

	assert.True(t, term.SymbolSelect(ctx, "EURUSD"))
	assert.False(t, term.SymbolSelect(ctx, "XAUUSD"))

	pos, err := term.PositionsGet(ctx, models.PositionFilter{Symbol: "EURUSD"})
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, int64(9), pos[0].Ticket)

	for _, c := range *calls {
		assert.Equal(t, `C:\MT5\terminal_5\terminal64.exe`, c.body.Path, c.capability)
	}
	assert.Equal(t, "EURUSD", (*calls)[len(*calls)-1].body.Position.Symbol)
}

func TestBridgeFailuresSetLastError(t *testing.T) {
	srv, _ := sidecar(t, func(capability string, _ call) any {
		switch capability {
		case "login":
			return map[string]any{"ok": false, "last_error": "(-6, 'Terminal: Authorization failed')"}
		case "order_send":
			return map[string]any{"ok": true, "data": map[string]any{"retcode": 10019, "comment": "No money"}}
		}
		return map[string]any{"ok": true}
	})

	term := New(srv.URL, "p")
	err := term.Login(context.Background(), 1, "x", "Demo")
	require.ErrorIs(t, err, ErrBridge)
	assert.Equal(t, "(-6, 'Terminal: Authorization failed')", term.LastError())

	res, err := term.OrderSend(context.Background(), models.OrderRequest{Symbol: "EURUSD", Volume: 1})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "(10019, 'No money')", term.LastError())
}

func TestFactoryNeedsBaseURL(t *testing.T) {
	_, err := Factory("")("p")
	assert.Error(t, err)
	term, err := Factory("http://127.0.0.1:1")("p")
	require.NoError(t, err)
	assert.NotNil(t, term)
}
