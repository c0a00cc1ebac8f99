package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"CopyFabric/internal/domain/models"
	drepo "CopyFabric/internal/domain/repository"
	"CopyFabric/internal/domain/service"
	"CopyFabric/internal/services/symbols"
	"CopyFabric/pkg/logger"
	"CopyFabric/pkg/util"
)

// ExecutorConfig holds the broker-facing knobs of the execution state machine.
type ExecutorConfig struct {
	// SettleDelay is how long a partial close waits before looking for the residual position.
	SettleDelay time.Duration
	// TickRetryDelay separates the first tick request from its single retry.
	TickRetryDelay time.Duration
	Deviation      int
	Magic          int64
	// RotationTolerance is the volume slack when matching the residual position.
	RotationTolerance float64
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		SettleDelay:       500 * time.Millisecond,
		TickRetryDelay:    200 * time.Millisecond,
		Deviation:         20,
		Magic:             models.Magic,
		RotationTolerance: 0.01,
	}
}

// Executor runs one TradeJob against one terminal. It is stateless between
// jobs; the caller holds the terminal mutex for the duration of Execute.
type Executor struct {
	tickets drepo.TicketStore
	symbols *symbols.Resolver
	cfg     ExecutorConfig
	log     *logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

type ExecutorOption func(*Executor)

func WithExecutorLogger(l *logger.Logger) ExecutorOption {
	return func(e *Executor) { e.log = l }
}

// WithSleeper replaces the wait used for tick retries and close settling.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

func NewExecutor(tickets drepo.TicketStore, resolver *symbols.Resolver, cfg ExecutorConfig, opts ...ExecutorOption) *Executor {
	if cfg.Magic == 0 {
		cfg.Magic = models.Magic
	}
	if cfg.RotationTolerance <= 0 {
		cfg.RotationTolerance = 0.01
	}
	if resolver == nil {
		resolver = symbols.NewResolver()
	}
	e := &Executor{
		tickets: tickets,
		symbols: resolver,
		cfg:     cfg,
		log:     logger.Nop(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jobRun carries per-job state through the action handlers.
type jobRun struct {
	path string
	term service.Terminal
	job  models.TradeJob
	log  *logger.Logger
}

func (r *jobRun) sig() models.Signal { return r.job.Signal }
func (r *jobRun) follower() models.FollowerConfig { return r.job.Follower }

// scope keys per-session caches such as symbol resolution.
func (r *jobRun) scope() string {
	return r.path + "|" + strconv.FormatInt(r.job.Follower.Login, 10)
}

// Execute runs the job and always returns a result; errors become failed
// or skipped results.
func (e *Executor) Execute(ctx context.Context, path string, term service.Terminal, job models.TradeJob) models.TradeResult {
	start := time.Now()
	run := &jobRun{
		path: path,
		term: term,
		job:  job,
		log: e.log.With(
			logger.String("master_id", job.Signal.MasterID),
			logger.Int64("master_ticket", job.Signal.Ticket),
			logger.String("follower_id", job.Follower.FollowerID),
			logger.String("action", string(job.Signal.Action)),
		),
	}

	res, err := e.run(ctx, run)
	if err != nil {
		res = FailureResult(job, err)
		if res.Status == models.StatusSkipped {
			run.log.Warn("job skipped", logger.String("reason", res.Message))
		} else {
			run.log.Error("job failed", logger.String("reason", res.Message))
		}
	} else if res.DealID != 0 && path != service.MockTerminal {
		e.enrich(ctx, run, &res)
	}
	res.ExecutionTime = time.Since(start)
	return res
}

// FailureResult converts an execution error into the job's result.
func FailureResult(job models.TradeJob, err error) models.TradeResult {
	res := baseResult(job)
	res.Status = models.StatusFailed
	res.Message = err.Error()

	var te *models.TradeError
	if errors.As(err, &te) {
		res.Message = te.Message
		if te.Kind.Neutral() {
			res.Status = models.StatusSkipped
		}
	}
	return res
}

func baseResult(job models.TradeJob) models.TradeResult {
	return models.TradeResult{
		AccountID: strconv.FormatInt(job.Follower.Login, 10),
		Action:    job.Signal.Action,
	}
}

func (e *Executor) run(ctx context.Context, r *jobRun) (models.TradeResult, error) {
	if r.path == service.MockTerminal {
		return mockResult(r.job), nil
	}
	if r.term == nil {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindInit, "Init Failed: no terminal bound", nil)
	}
	if err := r.term.Initialize(ctx, r.path); err != nil {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindInit, "Init Failed", err)
	}
	if isLoopback(r.sig(), r.follower()) {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindLoopback, "Loopback Prevented: master cannot copy onto itself", nil)
	}
	if err := e.ensureLogin(ctx, r); err != nil {
		return models.TradeResult{}, err
	}

	switch r.sig().Action {
	case models.ActionOpen:
		return e.open(ctx, r)
	case models.ActionModify:
		return e.modify(ctx, r)
	case models.ActionClose:
		return e.close(ctx, r)
	}
	return models.TradeResult{}, models.NewTradeError(models.ErrKindInternal, fmt.Sprintf("Unknown action %q", r.sig().Action), nil)
}

func mockResult(job models.TradeJob) models.TradeResult {
	res := baseResult(job)
	res.Status = models.StatusSuccess
	res.DealID = int64(uuid.New().ID())
	res.Message = "Executed (mock)"
	res.Price = job.Signal.Price
	res.Volume = job.Signal.Volume
	return res
}

// isLoopback is true when the follower is the master, by user id or, for a
// numeric master id, by broker login.
func isLoopback(sig models.Signal, f models.FollowerConfig) bool {
	if sig.MasterID == f.FollowerID {
		return true
	}
	if !util.IsNumeric(sig.MasterID) {
		return false
	}
	login, err := strconv.ParseInt(sig.MasterID, 10, 64)
	return err == nil && login == f.Login
}

func (e *Executor) ensureLogin(ctx context.Context, r *jobRun) error {
	f := r.follower()
	if acct, err := r.term.AccountInfo(ctx); err == nil && acct != nil && acct.Login == f.Login {
		return nil
	}
	if f.Login == 0 || f.Password == "" {
		return models.NewTradeError(models.ErrKindLogin, "Login Failed: missing credentials", nil)
	}
	if err := r.term.Login(ctx, f.Login, f.Password, f.Server); err != nil {
		msg := r.term.LastError()
		if msg == "" {
			msg = err.Error()
		}
		return models.NewTradeError(models.ErrKindLogin, "Login Failed: "+msg, err)
	}
	r.log.Debug("switched account", logger.Int64("login", f.Login))
	return nil
}

// tick fetches a quote, retrying once after the configured delay.
func (e *Executor) tick(ctx context.Context, r *jobRun, symbol string) (*models.Tick, error) {
	t, err := r.term.SymbolInfoTick(ctx, symbol)
	if err == nil && t != nil {
		return t, nil
	}
	if err := e.sleep(ctx, e.cfg.TickRetryDelay); err != nil {
		return nil, models.NewTradeError(models.ErrKindTick, "No Tick Data", err)
	}
	t, err = r.term.SymbolInfoTick(ctx, symbol)
	if err != nil || t == nil {
		return nil, models.NewTradeError(models.ErrKindTick, "No Tick Data", err)
	}
	return t, nil
}

func (e *Executor) send(ctx context.Context, r *jobRun, req models.OrderRequest, failPrefix string) (*models.OrderResult, error) {
	res, err := r.term.OrderSend(ctx, req)
	if err != nil {
		return nil, models.NewTradeError(models.ErrKindSend, failPrefix+": "+err.Error(), err)
	}
	if res == nil {
		return nil, models.NewTradeError(models.ErrKindSend, failPrefix+": "+r.term.LastError(), nil)
	}
	if !res.OK() {
		return res, models.NewTradeError(models.ErrKindSend, fmt.Sprintf("%s: %d %s", failPrefix, res.Retcode, res.Comment), nil)
	}
	return res, nil
}

// enrich fills deal details from history. Missing history is not an error.
func (e *Executor) enrich(ctx context.Context, r *jobRun, res *models.TradeResult) {
	deals, err := r.term.HistoryDeals(ctx, models.DealFilter{Ticket: res.DealID})
	if err != nil || len(deals) == 0 {
		return
	}
	d := deals[0]
	res.Profit = d.Profit
	if res.Price == 0 {
		res.Price = d.Price
	}
	if res.Volume == 0 {
		res.Volume = d.Volume
	}
	res.DealData = &models.DealData{
		Profit:     d.Profit,
		Swap:       d.Swap,
		Commission: d.Commission,
		Fee:        d.Fee,
		Volume:     d.Volume,
		Price:      d.Price,
		Comment:    d.Comment,
	}
}

// resolveTicket finds the follower position for the master ticket: the
// dispatcher hint, then the ticket map, then a comment scan. A scan hit is
// written back to the map.
func (e *Executor) resolveTicket(ctx context.Context, r *jobRun) (int64, error) {
	sig, f := r.sig(), r.follower()
	if f.TargetTicket > 0 {
		return f.TargetTicket, nil
	}
	if ticket, ok, err := e.tickets.FollowerTicket(ctx, sig.Ticket, f.FollowerID); err != nil {
		r.log.Warn("ticket map read failed", logger.Error(err))
	} else if ok {
		return ticket, nil
	}

	filter := models.PositionFilter{}
	if sig.Symbol != "" && sig.Symbol != models.AnySymbol {
		if name, ok := e.symbols.Resolve(ctx, r.term, r.scope(), sig.Symbol); ok {
			filter.Symbol = name
		}
	}
	positions, err := r.term.PositionsGet(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("scan positions: %w", err)
	}
	for _, p := range positions {
		if MatchesMasterTicket(p.Comment, sig.Ticket) {
			r.log.Info("ticket healed from comment scan", logger.Int64("ticket", p.Ticket))
			if err := e.tickets.SaveFollowerTicket(ctx, sig.Ticket, f.FollowerID, p.Ticket); err != nil {
				r.log.Warn("ticket map write failed", logger.Error(err))
			}
			return p.Ticket, nil
		}
	}
	return 0, nil
}

func (e *Executor) position(ctx context.Context, r *jobRun, ticket int64) (*models.Position, error) {
	positions, err := r.term.PositionsGet(ctx, models.PositionFilter{Ticket: ticket})
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Ticket == ticket {
			return &positions[i], nil
		}
	}
	return nil, nil
}

// MirrorLevels places inverted stops around entry for a follower trading
// side. The master's SL distance becomes the follower's TP distance and the
// master's TP distance becomes its SL distance. Unset levels stay 0.
func MirrorLevels(side models.Side, entry, masterEntry, sl, tp float64, digits int) (newSL, newTP float64) {
	distSL := distance(masterEntry, sl)
	distTP := distance(masterEntry, tp)
	if side == models.SideBuy {
		return level(entry, -distTP, digits), level(entry, distSL, digits)
	}
	return level(entry, distTP, digits), level(entry, -distSL, digits)
}

func distance(masterEntry, lvl float64) float64 {
	if lvl == 0 || masterEntry == 0 {
		return 0
	}
	d := decimal.NewFromFloat(masterEntry).Sub(decimal.NewFromFloat(lvl)).Abs()
	f, _ := d.Float64()
	return f
}

func level(entry, offset float64, digits int) float64 {
	if offset == 0 {
		return 0
	}
	v := decimal.NewFromFloat(entry).Add(decimal.NewFromFloat(offset))
	if digits > 0 {
		v = v.Round(int32(digits))
	}
	f, _ := v.Float64()
	return f
}
