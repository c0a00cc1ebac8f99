package service

import (
	"context"

	"CopyFabric/internal/domain/models"
)

// MockTerminal names a worker that fabricates results instead of trading.
const MockTerminal = "MOCK"

// Terminal is the narrow broker capability surface the executor drives.
// A Terminal holds at most one logged-in account at a time and is not safe
// for concurrent use; callers serialize access.
type Terminal interface {
	Initialize(ctx context.Context, path string) error
	Login(ctx context.Context, login int64, password, server string) error
	AccountInfo(ctx context.Context) (*models.AccountInfo, error)
	// SymbolSelect makes the symbol visible and reports whether it exists.
	SymbolSelect(ctx context.Context, symbol string) bool
	SymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error)
	SymbolInfoTick(ctx context.Context, symbol string) (*models.Tick, error)
	// Symbols lists broker symbols whose name contains the given text.
	Symbols(ctx context.Context, contains string) ([]string, error)
	PositionsGet(ctx context.Context, filter models.PositionFilter) ([]models.Position, error)
	HistoryDeals(ctx context.Context, filter models.DealFilter) ([]models.Deal, error)
	OrderSend(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error)
	// LastError describes the broker's most recent failure.
	LastError() string
	Shutdown()
}

// TerminalFactory opens the Terminal bound to a worker's path.
type TerminalFactory func(path string) (Terminal, error)
