// Package sim is an in-memory broker used for MOCK-adjacent deployments and
// for exercising the execution state machine deterministically.
package sim

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"CopyFabric/internal/domain/models"
)

// Retcodes the simulated server answers with besides success.
const (
	RetcodeInvalid        = 10013
	RetcodeNoMoney        = 10019
	RetcodePositionClosed = 10036
)

type account struct {
	info     models.AccountInfo
	password string
}

// Order is a logged OrderSend call.
type Order struct {
	Login   int64
	Request models.OrderRequest
	Result  models.OrderResult
}

// Exchange is the shared server side: accounts, symbols, positions and deals.
// Terminals opened from it see the same state, like real broker sessions do.
type Exchange struct {
	mu        sync.Mutex
	accounts  map[int64]*account
	symbols   map[string]models.SymbolInfo
	positions map[int64][]models.Position
	deals     map[int64][]models.Deal
	orders    []Order
	calls     map[string]int

	nextTicket int64
	nextDeal   int64

	rotate         bool
	accidentalOpen int
	missingTicks   int
	rejectNext     int
	failInit       bool
	openBalance    float64
	now            func() time.Time
}

type Option func(*Exchange)

// WithSymbol lists a tradable symbol with its current quote.
func WithSymbol(info models.SymbolInfo) Option {
	return func(e *Exchange) {
		if info.VolumeStep == 0 {
			info.VolumeStep = 0.01
		}
		if info.VolumeMin == 0 {
			info.VolumeMin = info.VolumeStep
		}
		if info.VolumeMax == 0 {
			info.VolumeMax = 100
		}
		if info.Digits == 0 {
			info.Digits = 5
		}
		e.symbols[info.Name] = info
	}
}

// WithAccount registers a login.
func WithAccount(info models.AccountInfo, password string) Option {
	return func(e *Exchange) {
		e.accounts[info.Login] = &account{info: info, password: password}
	}
}

// WithRotation makes partial closes re-issue the residual under a new ticket.
func WithRotation(on bool) Option {
	return func(e *Exchange) { e.rotate = on }
}

// WithTicketBase sets the first ticket number handed out.
func WithTicketBase(n int64) Option {
	return func(e *Exchange) { e.nextTicket = n }
}

// WithFailingInit makes every Initialize fail.
func WithFailingInit() Option {
	return func(e *Exchange) { e.failInit = true }
}

// WithOpenAccounts accepts any login, funding it with balance on first use.
func WithOpenAccounts(balance float64) Option {
	return func(e *Exchange) { e.openBalance = balance }
}

// Demo lists a few majors so a sim-backed process can trade out of the box.
func Demo() []Option {
	return []Option{
		WithOpenAccounts(10000),
		WithSymbol(models.SymbolInfo{Name: "EURUSD", Bid: 1.0840, Ask: 1.0842, ContractSize: 100000}),
		WithSymbol(models.SymbolInfo{Name: "GBPUSD", Bid: 1.2650, Ask: 1.2653, ContractSize: 100000}),
		WithSymbol(models.SymbolInfo{Name: "USDJPY", Bid: 151.20, Ask: 151.23, Digits: 3, ContractSize: 100000}),
		WithSymbol(models.SymbolInfo{Name: "XAUUSD", Bid: 2330.10, Ask: 2330.45, Digits: 2, ContractSize: 100}),
	}
}

func NewExchange(opts ...Option) *Exchange {
	e := &Exchange{
		accounts:   make(map[int64]*account),
		symbols:    make(map[string]models.SymbolInfo),
		positions:  make(map[int64][]models.Position),
		deals:      make(map[int64][]models.Deal),
		calls:      make(map[string]int),
		nextTicket: 1000,
		nextDeal:   5000,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewTerminal opens a session against the exchange.
func (e *Exchange) NewTerminal() *Terminal {
	return &Terminal{ex: e}
}

// SetQuote moves a symbol's bid/ask.
func (e *Exchange) SetQuote(symbol string, bid, ask float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := e.symbols[symbol]
	info.Bid, info.Ask = bid, ask
	e.symbols[symbol] = info
}

// DropTicks makes the next n tick requests return no data.
func (e *Exchange) DropTicks(n int) {
	e.mu.Lock()
	e.missingTicks = n
	e.mu.Unlock()
}

// AccidentalOpens makes the next n closing orders open a new position instead.
func (e *Exchange) AccidentalOpens(n int) {
	e.mu.Lock()
	e.accidentalOpen = n
	e.mu.Unlock()
}

// RejectNext makes the next n orders fail with RetcodeNoMoney.
func (e *Exchange) RejectNext(n int) {
	e.mu.Lock()
	e.rejectNext = n
	e.mu.Unlock()
}

// SetFreeMargin overrides an account's free margin.
func (e *Exchange) SetFreeMargin(login int64, free float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.accounts[login]; ok {
		a.info.FreeMargin = free
	}
}

// Seed places an existing position on an account and returns its ticket.
func (e *Exchange) Seed(login int64, pos models.Position) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pos.Ticket == 0 {
		pos.Ticket = e.ticket()
	}
	e.positions[login] = append(e.positions[login], pos)
	return pos.Ticket
}

// Positions returns a copy of an account's open positions.
func (e *Exchange) Positions(login int64) []models.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Position(nil), e.positions[login]...)
}

// Orders returns every OrderSend seen so far.
func (e *Exchange) Orders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Order(nil), e.orders...)
}

// Calls returns how often a capability was invoked, e.g. "scan" for
// symbol-wide position listings.
func (e *Exchange) Calls(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

func (e *Exchange) count(name string) {
	e.calls[name]++
}

func (e *Exchange) ticket() int64 {
	e.nextTicket++
	return e.nextTicket
}

func (e *Exchange) dealID() int64 {
	e.nextDeal++
	return e.nextDeal
}

func (e *Exchange) symbolNames(contains string) []string {
	out := make([]string, 0)
	for name := range e.symbols {
		if strings.Contains(name, contains) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (e *Exchange) findPosition(login, ticket int64) (int, bool) {
	for i, p := range e.positions[login] {
		if p.Ticket == ticket {
			return i, true
		}
	}
	return -1, false
}

func (e *Exchange) execute(login int64, req models.OrderRequest) (models.OrderResult, error) {
	if e.rejectNext > 0 {
		e.rejectNext--
		return models.OrderResult{Retcode: RetcodeNoMoney, Comment: "No money"}, nil
	}
	if _, ok := e.symbols[req.Symbol]; !ok {
		return models.OrderResult{Retcode: RetcodeInvalid, Comment: "Invalid symbol"}, nil
	}

	switch req.Action {
	case models.TradeActionSLTP:
		i, ok := e.findPosition(login, req.Position)
		if !ok {
			return models.OrderResult{Retcode: RetcodePositionClosed, Comment: "Position closed"}, nil
		}
		e.positions[login][i].SL = req.SL
		e.positions[login][i].TP = req.TP
		return models.OrderResult{Retcode: models.RetcodeDone, Order: req.Position}, nil

	case models.TradeActionDeal:
		if req.Volume <= 0 {
			return models.OrderResult{Retcode: RetcodeInvalid, Comment: "Invalid volume"}, nil
		}
		if req.Position == 0 || e.accidentalOpen > 0 {
			if req.Position != 0 {
				e.accidentalOpen--
			}
			return e.open(login, req), nil
		}
		return e.close(login, req), nil
	}
	return models.OrderResult{}, fmt.Errorf("sim: unsupported trade action %d", req.Action)
}

func (e *Exchange) open(login int64, req models.OrderRequest) models.OrderResult {
	ticket := e.ticket()
	e.positions[login] = append(e.positions[login], models.Position{
		Ticket:    ticket,
		Symbol:    req.Symbol,
		Type:      req.Type,
		Volume:    req.Volume,
		PriceOpen: req.Price,
		SL:        req.SL,
		TP:        req.TP,
		Magic:     req.Magic,
		Comment:   req.Comment,
	})
	deal := models.Deal{
		Ticket:     e.dealID(),
		Order:      ticket,
		PositionID: ticket,
		Symbol:     req.Symbol,
		Type:       req.Type,
		Entry:      models.DealEntryIn,
		Volume:     req.Volume,
		Price:      req.Price,
		Magic:      req.Magic,
		Comment:    req.Comment,
		Time:       e.now(),
	}
	e.deals[login] = append(e.deals[login], deal)
	return models.OrderResult{Retcode: models.RetcodeDone, Deal: deal.Ticket, Order: ticket, Volume: req.Volume, Price: req.Price}
}

func (e *Exchange) close(login int64, req models.OrderRequest) models.OrderResult {
	i, ok := e.findPosition(login, req.Position)
	if !ok {
		return models.OrderResult{Retcode: RetcodePositionClosed, Comment: "Position closed"}
	}
	pos := e.positions[login][i]

	vol := req.Volume
	if vol > pos.Volume {
		vol = pos.Volume
	}
	remaining := roundVolume(pos.Volume - vol)

	var profit float64
	if pos.Type == models.OrderTypeBuy {
		profit = (req.Price - pos.PriceOpen) * vol
	} else {
		profit = (pos.PriceOpen - req.Price) * vol
	}

	list := e.positions[login]
	switch {
	case remaining <= 0:
		e.positions[login] = append(list[:i], list[i+1:]...)
	case e.rotate:
		e.positions[login] = append(list[:i], list[i+1:]...)
		residual := pos
		residual.Ticket = e.ticket()
		residual.Volume = remaining
		e.positions[login] = append(e.positions[login], residual)
	default:
		e.positions[login][i].Volume = remaining
	}

	deal := models.Deal{
		Ticket:     e.dealID(),
		Order:      e.ticket(),
		PositionID: pos.Ticket,
		Symbol:     pos.Symbol,
		Type:       req.Type,
		Entry:      models.DealEntryOut,
		Volume:     vol,
		Price:      req.Price,
		Profit:     profit,
		Magic:      req.Magic,
		Comment:    req.Comment,
		Time:       e.now(),
	}
	e.deals[login] = append(e.deals[login], deal)
	return models.OrderResult{Retcode: models.RetcodeDone, Deal: deal.Ticket, Order: deal.Order, Volume: vol, Price: req.Price}
}

func roundVolume(v float64) float64 {
	const scale = 1e8
	if v < 0 {
		return 0
	}
	return float64(int64(v*scale+0.5)) / scale
}
