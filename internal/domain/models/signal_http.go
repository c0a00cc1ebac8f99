package models

// SignalRequest is the body of a manual dispatch over HTTP.
type SignalRequest struct {
	MasterID    string  `json:"masterId" validate:"required"`
	Ticket      int64   `json:"ticket" validate:"gt=0"`
	Action      string  `json:"action" validate:"required,oneof=OPEN MODIFY CLOSE"`
	Symbol      string  `json:"symbol" validate:"required"`
	Type        string  `json:"type" validate:"omitempty,oneof=BUY SELL"`
	Volume      float64 `json:"volume" validate:"gte=0"`
	Pct         float64 `json:"pct" validate:"gte=0,lte=1"`
	Price       float64 `json:"price" validate:"gte=0"`
	SL          float64 `json:"sl" validate:"gte=0"`
	TP          float64 `json:"tp" validate:"gte=0"`
	MasterEntry float64 `json:"master_entry" validate:"gte=0"`
	Timestamp   float64 `json:"timestamp"`
}

// Signal converts the request; a missing timestamp is stamped with now.
func (r SignalRequest) Signal(now float64) Signal {
	ts := r.Timestamp
	if ts <= 0 {
		ts = now
	}
	return Signal{
		MasterID:    r.MasterID,
		Ticket:      r.Ticket,
		Action:      Action(r.Action),
		Symbol:      r.Symbol,
		Type:        Side(r.Type),
		Volume:      r.Volume,
		Pct:         r.Pct,
		Price:       r.Price,
		SL:          r.SL,
		TP:          r.TP,
		MasterEntry: r.MasterEntry,
		Timestamp:   ts,
	}
}
