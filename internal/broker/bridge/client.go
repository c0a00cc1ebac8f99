// Package bridge drives a broker terminal through the JSON bridge sidecar
// that runs next to each terminal installation.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"CopyFabric/internal/domain/models"
	"CopyFabric/internal/domain/service"
	httpclient "CopyFabric/pkg/http"
)

var ErrBridge = errors.New("bridge: call failed")

// envelope is the sidecar's response shape for every capability.
type envelope[T any] struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LastError string `json:"last_error,omitempty"`
	Data      T      `json:"data"`
}

type call struct {
	Path     string                 `json:"path"`
	Login    int64                  `json:"login,omitempty"`
	Password string                 `json:"password,omitempty"`
	Server   string                 `json:"server,omitempty"`
	Symbol   string                 `json:"symbol,omitempty"`
	Contains string                 `json:"contains,omitempty"`
	Position *models.PositionFilter `json:"positions,omitempty"`
	Deals    *models.DealFilter     `json:"deals,omitempty"`
	Request  *models.OrderRequest   `json:"request,omitempty"`
}

// Terminal is a service.Terminal backed by the sidecar at baseURL. The
// terminal path travels with every call so one sidecar can host several
// installations.
type Terminal struct {
	client  *httpclient.Client
	baseURL string
	path    string

	mu      sync.Mutex
	lastErr string
}

type Option func(*Terminal)

// WithClient replaces the HTTP client, e.g. to change timeouts.
func WithClient(c *httpclient.Client) Option {
	return func(t *Terminal) { t.client = c }
}

// WithTimeout bounds each sidecar call.
func WithTimeout(d time.Duration) Option {
	return func(t *Terminal) {
		if d > 0 {
			t.client = httpclient.NewClient(httpclient.WithTimeout(d))
		}
	}
}

func New(baseURL, path string, opts ...Option) *Terminal {
	t := &Terminal{
		client:  httpclient.NewClient(httpclient.WithTimeout(10 * time.Second)),
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    path,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Factory opens one bridge Terminal per worker path.
func Factory(baseURL string, opts ...Option) service.TerminalFactory {
	return func(path string) (service.Terminal, error) {
		if baseURL == "" {
			return nil, fmt.Errorf("bridge: base url is required")
		}
		return New(baseURL, path, opts...), nil
	}
}

func do[T any](ctx context.Context, t *Terminal, capability string, body call) (T, error) {
	var zero T
	body.Path = t.path
	var env envelope[T]
	err := t.client.PostJSON(ctx, t.baseURL+"/terminal/"+capability, body, &env)
	if err != nil {
		t.setLastError(err.Error())
		return zero, fmt.Errorf("%w: %s: %v", ErrBridge, capability, err)
	}
	if env.LastError != "" {
		t.setLastError(env.LastError)
	}
	if !env.OK {
		msg := env.Error
		if msg == "" {
			msg = env.LastError
		}
		t.setLastError(msg)
		return zero, fmt.Errorf("%w: %s: %s", ErrBridge, capability, msg)
	}
	return env.Data, nil
}

func (t *Terminal) setLastError(msg string) {
	t.mu.Lock()
	t.lastErr = msg
	t.mu.Unlock()
}

func (t *Terminal) Initialize(ctx context.Context, path string) error {
	if path != "" {
		t.path = path
	}
	_, err := do[struct{}](ctx, t, "initialize", call{})
	return err
}

func (t *Terminal) Login(ctx context.Context, login int64, password, server string) error {
	_, err := do[struct{}](ctx, t, "login", call{Login: login, Password: password, Server: server})
	return err
}

func (t *Terminal) AccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	return do[*models.AccountInfo](ctx, t, "account_info", call{})
}

func (t *Terminal) SymbolSelect(ctx context.Context, symbol string) bool {
	ok, err := do[bool](ctx, t, "symbol_select", call{Symbol: symbol})
	return err == nil && ok
}

func (t *Terminal) SymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error) {
	return do[*models.SymbolInfo](ctx, t, "symbol_info", call{Symbol: symbol})
}

func (t *Terminal) SymbolInfoTick(ctx context.Context, symbol string) (*models.Tick, error) {
	return do[*models.Tick](ctx, t, "symbol_info_tick", call{Symbol: symbol})
}

func (t *Terminal) Symbols(ctx context.Context, contains string) ([]string, error) {
	return do[[]string](ctx, t, "symbols_get", call{Contains: contains})
}

func (t *Terminal) PositionsGet(ctx context.Context, filter models.PositionFilter) ([]models.Position, error) {
	return do[[]models.Position](ctx, t, "positions_get", call{Position: &filter})
}

func (t *Terminal) HistoryDeals(ctx context.Context, filter models.DealFilter) ([]models.Deal, error) {
	return do[[]models.Deal](ctx, t, "history_deals_get", call{Deals: &filter})
}

// OrderSend returns the broker's result even when the retcode is not a
// success; only transport failures are errors.
func (t *Terminal) OrderSend(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	res, err := do[*models.OrderResult](ctx, t, "order_send", call{Symbol: req.Symbol, Request: &req})
	if err != nil {
		return nil, err
	}
	if res != nil && !res.OK() {
		t.setLastError(fmt.Sprintf("(%d, '%s')", res.Retcode, res.Comment))
	}
	return res, nil
}

func (t *Terminal) LastError() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Shutdown asks the sidecar to release the terminal. Errors are ignored.
func (t *Terminal) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = do[struct{}](ctx, t, "shutdown", call{})
}

var _ service.Terminal = (*Terminal)(nil)
