package usecase

import (
	"context"
	"fmt"
	"math"

	"CopyFabric/internal/domain/models"
	"CopyFabric/internal/services/sizing"
	"CopyFabric/pkg/logger"
)

const alreadyClosed = "Close: Already Closed / Not Found"

func (e *Executor) close(ctx context.Context, r *jobRun) (models.TradeResult, error) {
	sig, f := r.sig(), r.follower()

	ticket, err := e.resolveTicket(ctx, r)
	if err != nil {
		r.log.Warn("close resolution failed", logger.Error(err))
	}
	if ticket == 0 {
		return closedResult(r.job), nil
	}
	pos, err := e.position(ctx, r, ticket)
	if err != nil {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindResolve, "Close Fail: Position Lookup Failed", err)
	}
	if pos == nil {
		return closedResult(r.job), nil
	}

	info, err := r.term.SymbolInfo(ctx, pos.Symbol)
	if err != nil {
		return models.TradeResult{}, models.NewTradeError(models.ErrKindSymbol, "Symbol Info Failed: "+pos.Symbol, err)
	}
	tick, err := e.tick(ctx, r, pos.Symbol)
	if err != nil {
		return models.TradeResult{}, err
	}

	closeType := pos.Type.Opposite()
	price := tick.Bid
	if closeType == models.OrderTypeBuy {
		price = tick.Ask
	}

	var raw float64
	switch {
	case sig.Pct > 0:
		raw = pos.Volume * sig.Pct
	case sig.Volume > 0:
		raw = sig.Volume * f.RiskPercent() / 100
		r.log.Warn("close sized from absolute master volume",
			logger.Float64("master_volume", sig.Volume),
			logger.Float64("position_volume", pos.Volume),
		)
	default:
		raw = pos.Volume
	}
	volume, full := sizing.CloseVolume(pos.Volume, raw, *info)

	req := models.OrderRequest{
		Action:      models.TradeActionDeal,
		Symbol:      pos.Symbol,
		Volume:      volume,
		Type:        closeType,
		Price:       price,
		Position:    ticket,
		Deviation:   e.cfg.Deviation,
		Magic:       e.cfg.Magic,
		Comment:     CloseComment(sig.Ticket),
		TypeTime:    models.TimeGTC,
		TypeFilling: models.FillingIOC,
	}
	out, err := e.send(ctx, r, req, "Close Failed")
	if err != nil {
		return models.TradeResult{}, err
	}

	if err := e.revertAccidentalOpen(ctx, r, out, volume); err != nil {
		return models.TradeResult{}, err
	}

	if full {
		if err := e.tickets.MarkClosed(ctx, sig.MasterID, sig.Ticket); err != nil {
			r.log.Warn("closed set write failed", logger.Error(err))
		}
	} else {
		e.followRotation(ctx, r, pos, volume, *info)
	}
	r.log.Info("closed",
		logger.Int64("ticket", ticket),
		logger.Float64("volume", volume),
		logger.Bool("full", full),
	)

	res := baseResult(r.job)
	res.Status = models.StatusSuccess
	res.DealID = out.Deal
	res.Message = "Closed"
	if !full {
		res.Message = "Partially Closed"
	}
	res.Price = out.Price
	res.Volume = volume
	return res, nil
}

func closedResult(job models.TradeJob) models.TradeResult {
	res := baseResult(job)
	res.Status = models.StatusSuccess
	res.Message = alreadyClosed
	return res
}

// revertAccidentalOpen checks the close deal really exited a position. If
// the broker opened a new one instead, it is closed right away.
func (e *Executor) revertAccidentalOpen(ctx context.Context, r *jobRun, out *models.OrderResult, volume float64) error {
	if out.Deal == 0 {
		return nil
	}
	deals, err := r.term.HistoryDeals(ctx, models.DealFilter{Ticket: out.Deal})
	if err != nil || len(deals) == 0 {
		return nil
	}
	deal := deals[0]
	if deal.Entry != models.DealEntryIn {
		return nil
	}

	r.log.Error("close opened a new position, reversing",
		logger.Int64("deal", deal.Ticket),
		logger.Int64("position", deal.PositionID),
	)
	reverse := deal.Type.Opposite()
	price := 0.0
	if tick, err := r.term.SymbolInfoTick(ctx, deal.Symbol); err == nil && tick != nil {
		price = tick.Bid
		if reverse == models.OrderTypeBuy {
			price = tick.Ask
		}
	}
	req := models.OrderRequest{
		Action:      models.TradeActionDeal,
		Symbol:      deal.Symbol,
		Volume:      volume,
		Type:        reverse,
		Price:       price,
		Position:    deal.PositionID,
		Deviation:   e.cfg.Deviation,
		Magic:       e.cfg.Magic,
		Comment:     ReverseComment,
		TypeTime:    models.TimeGTC,
		TypeFilling: models.FillingIOC,
	}
	if _, err := e.send(ctx, r, req, "ERR_FIX Failed"); err != nil {
		return err
	}
	return models.NewTradeError(models.ErrKindSend,
		fmt.Sprintf("Close Error: Opened Instead, Reversed With %s", ReverseComment), nil)
}

// followRotation finds the residual of a partial close. A new ticket means
// the broker rotated the position; the same ticket means netting.
func (e *Executor) followRotation(ctx context.Context, r *jobRun, pos *models.Position, closed float64, info models.SymbolInfo) {
	sig, f := r.sig(), r.follower()
	expected := sizing.Remainder(pos.Volume, closed, info)

	if err := e.sleep(ctx, e.cfg.SettleDelay); err != nil {
		return
	}
	positions, err := r.term.PositionsGet(ctx, models.PositionFilter{Symbol: pos.Symbol})
	if err != nil {
		r.log.Warn("post-close scan failed", logger.Error(err))
		return
	}

	var match *models.Position
	for i := range positions {
		p := &positions[i]
		if p.Magic != pos.Magic || math.Abs(p.Volume-expected) > e.cfg.RotationTolerance+1e-9 {
			continue
		}
		if p.Ticket == pos.Ticket {
			match = p
			break
		}
		if match == nil || (MatchesMasterTicket(p.Comment, sig.Ticket) && !MatchesMasterTicket(match.Comment, sig.Ticket)) {
			match = p
		}
	}
	if match == nil {
		r.log.Warn(fmt.Sprintf("Post-Close Scan: Could not find residual position of %.2f lots", expected),
			logger.Int64("ticket", pos.Ticket))
		return
	}

	if match.Ticket != pos.Ticket {
		r.log.Info("position rotated", logger.Int64("from", pos.Ticket), logger.Int64("to", match.Ticket))
	}
	if err := e.tickets.SaveFollowerTicket(ctx, sig.Ticket, f.FollowerID, match.Ticket); err != nil {
		r.log.Error("ticket map write failed", logger.Int64("ticket", match.Ticket), logger.Error(err))
	}
}
