package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopyFabric/internal/domain/models"
)

func TestDemoAcceptsAnyLogin(t *testing.T) {
	ex := NewExchange(Demo()...)
	term := ex.NewTerminal()
	ctx := context.Background()

	require.NoError(t, term.Initialize(ctx, "MOCK"))
	require.NoError(t, term.Login(ctx, 7001, "pw", "Demo-Server"))
	info, err := term.AccountInfo(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000, info.FreeMargin, 1e-9)

	// the auto-created account keeps its password
	other := ex.NewTerminal()
	require.NoError(t, other.Initialize(ctx, "MOCK"))
	assert.Error(t, other.Login(ctx, 7001, "wrong", ""))

	names, err := term.Symbols(ctx, "USD")
	require.NoError(t, err)
	assert.Contains(t, names, "XAUUSD")
}

func TestPartialCloseRotation(t *testing.T) {
	ex := NewExchange(
		WithSymbol(models.SymbolInfo{Name: "EURUSD", Bid: 1.1, Ask: 1.1002}),
		WithAccount(models.AccountInfo{Login: 1, FreeMargin: 1000}, "pw"),
		WithRotation(true),
		WithTicketBase(99),
	)
	ticket := ex.Seed(1, models.Position{Symbol: "EURUSD", Type: models.OrderTypeBuy, Volume: 0.2, PriceOpen: 1.09})
	assert.Equal(t, int64(100), ticket)

	term := ex.NewTerminal()
	ctx := context.Background()
	require.NoError(t, term.Initialize(ctx, "MOCK"))
	require.NoError(t, term.Login(ctx, 1, "pw", ""))

	res, err := term.OrderSend(ctx, models.OrderRequest{
		Action:   models.TradeActionDeal,
		Symbol:   "EURUSD",
		Type:     models.OrderTypeSell,
		Volume:   0.1,
		Price:    1.1,
		Position: ticket,
	})
	require.NoError(t, err)
	assert.True(t, res.OK())

	pos := ex.Positions(1)
	require.Len(t, pos, 1)
	assert.NotEqual(t, ticket, pos[0].Ticket)
	assert.InDelta(t, 0.1, pos[0].Volume, 1e-9)
}

func TestRejectNext(t *testing.T) {
	ex := NewExchange(
		WithSymbol(models.SymbolInfo{Name: "EURUSD", Bid: 1.1, Ask: 1.1002}),
		WithAccount(models.AccountInfo{Login: 1}, "pw"),
	)
	ex.RejectNext(1)
	term := ex.NewTerminal()
	ctx := context.Background()
	require.NoError(t, term.Initialize(ctx, "MOCK"))
	require.NoError(t, term.Login(ctx, 1, "pw", ""))

	res, err := term.OrderSend(ctx, models.OrderRequest{Action: models.TradeActionDeal, Symbol: "EURUSD", Volume: 0.1})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "(10019, 'No money')", term.LastError())
	assert.Empty(t, ex.Positions(1))
}
