package sim

import (
	"context"
	"errors"
	"fmt"

	"CopyFabric/internal/domain/models"
	"CopyFabric/internal/domain/service"
)

var (
	ErrNotInitialized = errors.New("sim: terminal not initialized")
	ErrNoAccount      = errors.New("sim: no account logged in")
	ErrNoTick         = errors.New("sim: no tick data")
)

// Terminal is one session against an Exchange.
type Terminal struct {
	ex      *Exchange
	path    string
	login   int64
	lastErr string
}

func (t *Terminal) fail(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	t.lastErr = err.Error()
	return err
}

func (t *Terminal) Initialize(_ context.Context, path string) error {
	t.ex.mu.Lock()
	defer t.ex.mu.Unlock()
	t.ex.count("initialize")
	if t.ex.failInit {
		return t.fail("(-10005, 'IPC timeout') initializing %s", path)
	}
	t.path = path
	return nil
}

func (t *Terminal) Login(_ context.Context, login int64, password, server string) error {
	t.ex.mu.Lock()
	defer t.ex.mu.Unlock()
	t.ex.count("login")
	if t.path == "" {
		return ErrNotInitialized
	}
	acct, ok := t.ex.accounts[login]
	if !ok && t.ex.openBalance > 0 {
		acct = &account{
			info:     models.AccountInfo{Login: login, Server: server, Balance: t.ex.openBalance, Equity: t.ex.openBalance, FreeMargin: t.ex.openBalance, Leverage: 100, Currency: "USD"},
			password: password,
		}
		t.ex.accounts[login] = acct
		ok = true
	}
	if !ok || acct.password != password {
		return t.fail("(-6, 'Terminal: Authorization failed')")
	}
	if server != "" && acct.info.Server != "" && server != acct.info.Server {
		return t.fail("(-6, 'Terminal: Authorization failed') server %s", server)
	}
	t.login = login
	return nil
}

func (t *Terminal) AccountInfo(_ context.Context) (*models.AccountInfo, error) {
	t.ex.mu.Lock()
	defer t.ex.mu.Unlock()
	if t.login == 0 {
		return nil, ErrNoAccount
	}
	info := t.ex.accounts[t.login].info
	return &info, nil
}

func (t *Terminal) SymbolSelect(_ context.Context, symbol string) bool {
	t.ex.mu.Lock()
	defer t.ex.mu.Unlock()
	t.ex.count("select")
	_, ok := t.ex.symbols[symbol]
	return ok
}

func (t *Terminal) SymbolInfo(_ context.Context, symbol string) (*models.SymbolInfo, error) {
	t.ex.mu.Lock()
	defer t.ex.mu.Unlock()
	info, ok := t.ex.symbols[symbol]
	if !ok {
		return nil, t.fail("symbol %s not found", symbol)
	}
	return &info, nil
}

func (t *Terminal) SymbolInfoTick(_ context.Context, symbol string) (*models.Tick, error) {
	t.ex.mu.Lock()
	defer t.ex.mu.Unlock()
	t.ex.count("tick")
	if t.ex.missingTicks > 0 {
		t.ex.missingTicks--
		return nil, ErrNoTick
	}
	info, ok := t.ex.symbols[symbol]
	if !ok {
		return nil, ErrNoTick
	}
	return &models.Tick{Bid: info.Bid, Ask: info.Ask, Last: info.Bid, Time: t.ex.now()}, nil
}

func (t *Terminal) Symbols(_ context.Context, contains string) ([]string, error) {
	t.ex.mu.Lock()
	defer t.ex.mu.Unlock()
	t.ex.count("symbols")
	return t.ex.symbolNames(contains), nil
}

func (t *Terminal) PositionsGet(_ context.Context, filter models.PositionFilter) ([]models.Position, error) {
	t.ex.mu.Lock()
	defer t.ex.mu.Unlock()
	if t.login == 0 {
		return nil, ErrNoAccount
	}
	if filter.Ticket == 0 {
		t.ex.count("scan")
	} else {
		t.ex.count("position")
	}

	out := make([]models.Position, 0)
	for _, p := range t.ex.positions[t.login] {
		if filter.Ticket != 0 && p.Ticket != filter.Ticket {
			continue
		}
		if filter.Symbol != "" && p.Symbol != filter.Symbol {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *Terminal) HistoryDeals(_ context.Context, filter models.DealFilter) ([]models.Deal, error) {
	t.ex.mu.Lock()
	defer t.ex.mu.Unlock()
	if t.login == 0 {
		return nil, ErrNoAccount
	}
	out := make([]models.Deal, 0)
	for _, d := range t.ex.deals[t.login] {
		if filter.Ticket != 0 && d.Ticket != filter.Ticket {
			continue
		}
		if filter.Position != 0 && d.PositionID != filter.Position {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (t *Terminal) OrderSend(_ context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	t.ex.mu.Lock()
	defer t.ex.mu.Unlock()
	t.ex.count("order")
	if t.login == 0 {
		return nil, ErrNoAccount
	}
	res, err := t.ex.execute(t.login, req)
	if err != nil {
		return nil, t.fail("%v", err)
	}
	if !res.OK() {
		t.lastErr = fmt.Sprintf("(%d, '%s')", res.Retcode, res.Comment)
	}
	t.ex.orders = append(t.ex.orders, Order{Login: t.login, Request: req, Result: res})
	return &res, nil
}

func (t *Terminal) LastError() string { return t.lastErr }

func (t *Terminal) Shutdown() {
	t.ex.mu.Lock()
	t.path = ""
	t.login = 0
	t.ex.mu.Unlock()
}

// Factory opens sessions for every worker path against one shared exchange.
func Factory(ex *Exchange) service.TerminalFactory {
	return func(string) (service.Terminal, error) {
		return ex.NewTerminal(), nil
	}
}

var _ service.Terminal = (*Terminal)(nil)
