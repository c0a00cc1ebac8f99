package usecase

import (
	"context"

	"CopyFabric/internal/domain/models"
	"CopyFabric/pkg/logger"
)

func (e *Executor) modify(ctx context.Context, r *jobRun) (models.TradeResult, error) {
	sig, f := r.sig(), r.follower()

	ticket, err := e.resolveTicket(ctx, r)
	if err != nil || ticket == 0 {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindResolve, "Modify Fail: Map Missing & Scan Failed", err)
	}
	if f.InvertCopy && sig.MasterEntry <= 0 {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindAbort, "Modify Aborted: Missing master_entry", nil)
	}

	pos, err := e.position(ctx, r, ticket)
	if err != nil {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindResolve, "Modify Fail: Position Lookup Failed", err)
	}
	if pos == nil {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindResolve, "Modify Fail: Position Not Found", nil)
	}

	sl, tp := sig.SL, sig.TP
	if f.InvertCopy {
		digits := 0
		if info, err := r.term.SymbolInfo(ctx, pos.Symbol); err == nil {
			digits = info.Digits
		}
		sl, tp = MirrorLevels(pos.Type.Side(), pos.PriceOpen, sig.MasterEntry, sig.SL, sig.TP, digits)
	}

	req := models.OrderRequest{
		Action:   models.TradeActionSLTP,
		Symbol:   pos.Symbol,
		Position: ticket,
		SL:       sl,
		TP:       tp,
		Magic:    e.cfg.Magic,
	}
	if _, err := e.send(ctx, r, req, "Modify Failed"); err != nil {
		return models.TradeResult{}, err
	}
	r.log.Info("modified", logger.Int64("ticket", ticket), logger.Float64("sl", sl), logger.Float64("tp", tp))

	res := baseResult(r.job)
	res.Status = models.StatusSuccess
	res.Message = "Modified"
	res.Price = pos.PriceOpen
	res.Volume = pos.Volume
	return res, nil
}
