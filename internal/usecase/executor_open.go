package usecase

import (
	"context"
	"strconv"

	"CopyFabric/internal/domain/models"
	"CopyFabric/internal/services/sizing"
	"CopyFabric/pkg/logger"
)

func (e *Executor) open(ctx context.Context, r *jobRun) (models.TradeResult, error) {
	sig, f := r.sig(), r.follower()

	symbol, ok := e.symbols.Resolve(ctx, r.term, r.scope(), sig.Symbol)
	if !ok {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindSymbol, "Symbol Not Found: "+sig.Symbol, nil)
	}
	info, err := r.term.SymbolInfo(ctx, symbol)
	if err != nil {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindSymbol, "Symbol Info Failed: "+symbol, err)
	}
	acct, err := r.term.AccountInfo(ctx)
	if err != nil {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindLogin, "Account Info Failed", err)
	}

	volume := sizing.Calculate(sizing.Input{
		MasterLot:   sig.Volume,
		RiskPercent: f.RiskPercent(),
		Price:       sig.Price,
		Account:     *acct,
		Symbol:      *info,
	})
	if volume <= 0 {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindMargin, "SKIPPED: Margin/Risk Limit", nil)
	}

	tick, err := e.tick(ctx, r, symbol)
	if err != nil {
		return models.TradeResult{}, err
	}

	if existing, ok := e.findDuplicate(ctx, r, symbol); ok {
		res := baseResult(r.job)
		res.Status = models.StatusSuccess
		res.Message = "Duplicate Prevented: " + strconv.FormatInt(existing, 10)
		r.log.Info("duplicate open suppressed", logger.Int64("ticket", existing))
		return res, nil
	}

	side := sig.Type
	if f.InvertCopy {
		side = side.Opposite()
	}
	price := tick.Ask
	if side == models.SideSell {
		price = tick.Bid
	}

	sl, tp := sig.SL, sig.TP
	if f.InvertCopy {
		masterEntry := sig.Price
		if sig.MasterEntry > 0 {
			masterEntry = sig.MasterEntry
		}
		sl, tp = MirrorLevels(side, price, masterEntry, sig.SL, sig.TP, info.Digits)
	}

	req := models.OrderRequest{
		Action:      models.TradeActionDeal,
		Symbol:      symbol,
		Volume:      volume,
		Type:        models.OrderTypeFor(side),
		Price:       price,
		SL:          sl,
		TP:          tp,
		Deviation:   e.cfg.Deviation,
		Magic:       e.cfg.Magic,
		Comment:     OpenComment(f.SessionID, sig.Ticket),
		TypeTime:    models.TimeGTC,
		TypeFilling: models.FillingIOC,
	}
	out, err := e.send(ctx, r, req, "Order Failed")
	if err != nil {
		return models.TradeResult{}, err
	}

	ticket := out.Order
	if err := e.tickets.SaveFollowerTicket(ctx, sig.Ticket, f.FollowerID, ticket); err != nil {
		r.log.Error("ticket map write failed", logger.Int64("ticket", ticket), logger.Error(err))
	}
	r.log.Info("opened",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.Float64("volume", volume),
		logger.Int64("ticket", ticket),
	)

	res := baseResult(r.job)
	res.Status = models.StatusSuccess
	res.DealID = out.Deal
	res.Message = "Executed"
	res.Price = out.Price
	res.Volume = out.Volume
	if res.Volume == 0 {
		res.Volume = volume
	}
	return res, nil
}

// findDuplicate looks for an open position already carrying this master
// ticket, by comment tag or by a mapped ticket that is still open.
func (e *Executor) findDuplicate(ctx context.Context, r *jobRun, symbol string) (int64, bool) {
	sig, f := r.sig(), r.follower()
	positions, err := r.term.PositionsGet(ctx, models.PositionFilter{Symbol: symbol})
	if err != nil {
		r.log.Warn("duplicate scan failed", logger.Error(err))
	}
	for _, p := range positions {
		if MatchesMasterTicket(p.Comment, sig.Ticket) {
			return p.Ticket, true
		}
	}

	mapped, ok, err := e.tickets.FollowerTicket(ctx, sig.Ticket, f.FollowerID)
	if err != nil || !ok {
		return 0, false
	}
	for _, p := range positions {
		if p.Ticket == mapped {
			return mapped, true
		}
	}
	return 0, false
}
