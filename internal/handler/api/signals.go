package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"CopyFabric/internal/domain/models"
	"CopyFabric/internal/middleware"
	"CopyFabric/internal/service/ratelimit"
	"CopyFabric/internal/usecase"
	xhttp "CopyFabric/pkg/http"
	applogger "CopyFabric/pkg/logger"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats exposes worker pool occupancy.
type PoolStats interface {
	Size() int
	Pending() int
}

// RateLimit is the per-master token bucket for manual dispatches.
type RateLimit struct {
	Burst     float64
	PerSecond float64
}

// SignalsHandler serves the ops surface: manual dispatch, health and the
// live result stream.
type SignalsHandler struct {
	gate       *middleware.SignalGate
	dispatcher usecase.SignalDispatcher
	store      Pinger
	pool       PoolStats
	results    http.Handler
	rl         *ratelimit.Limiter
	limit      RateLimit
	l          *applogger.Logger
	now        func() time.Time
}

type Option func(*SignalsHandler)

func WithLogger(l *applogger.Logger) Option {
	return func(h *SignalsHandler) { h.l = l }
}

// WithResultStream mounts the websocket stream at /ws/results.
func WithResultStream(ws http.Handler) Option {
	return func(h *SignalsHandler) { h.results = ws }
}

func WithRateLimit(rl RateLimit) Option {
	return func(h *SignalsHandler) {
		if rl.Burst > 0 && rl.PerSecond > 0 {
			h.limit = rl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *SignalsHandler) { h.now = now }
}

func NewSignalsHandler(gate *middleware.SignalGate, dispatcher usecase.SignalDispatcher, store Pinger, pool PoolStats, opts ...Option) *SignalsHandler {
	h := &SignalsHandler{
		gate:       gate,
		dispatcher: dispatcher,
		store:      store,
		pool:       pool,
		rl:         ratelimit.New(),
		limit:      RateLimit{Burst: 10, PerSecond: 5},
		l:          applogger.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/signals", h.Dispatch)
	g.GET("/health", h.Health)
	if h.results != nil {
		e.GET("/ws/results", echo.WrapHandler(h.results))
	}
}

// Dispatch runs one signal through the same gate and dispatcher as the
// channel ingestor and returns every follower's result.
func (h *SignalsHandler) Dispatch(c echo.Context) error {
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(req.MasterID, h.limit.Burst, h.limit.PerSecond) {
		h.l.Warn("signals.dispatch rate_limited", applogger.String("master_id", req.MasterID))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "masterId", "too many signals for this master", http.StatusTooManyRequests))
	}

	now := h.now()
	sig := req.Signal(float64(now.UnixNano()) / 1e9)
	ctx := c.Request().Context()
	if err := h.gate.Check(ctx, sig); err != nil {
		switch {
		case errors.Is(err, middleware.ErrMalformed):
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		case errors.Is(err, middleware.ErrStale), errors.Is(err, middleware.ErrAlreadyClosed):
			return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_DROPPED", "", err.Error(), http.StatusConflict))
		}
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err.Error()))
	}

	results, err := h.dispatcher.Dispatch(ctx, sig)
	if err != nil {
		h.l.Error("signals.dispatch failed", applogger.String("master_id", sig.MasterID), applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_DISPATCH", "", "dispatch failed", http.StatusServiceUnavailable).WithError(err))
	}
	if results == nil {
		results = []models.TradeResult{}
	}
	return xhttp.SuccessResponse(c, results)
}

type healthResponse struct {
	Status  string `json:"status"`
	Store   string `json:"store"`
	Workers int    `json:"workers"`
	Pending int    `json:"pending"`
}

func (h *SignalsHandler) Health(c echo.Context) error {
	res := healthResponse{Status: "ok", Store: "ok"}
	if h.pool != nil {
		res.Workers = h.pool.Size()
		res.Pending = h.pool.Pending()
	}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.l.Warn("health: store ping failed", applogger.Error(err))
			res.Status, res.Store = "degraded", err.Error()
			return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
		}
	}
	return xhttp.SuccessResponse(c, res)
}

var _ xhttp.Handler = (*SignalsHandler)(nil)
