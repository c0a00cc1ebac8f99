package models

import "time"

// Magic tags every order this engine sends.
const Magic int64 = 234000

type OrderType int

const (
	OrderTypeBuy  OrderType = 0
	OrderTypeSell OrderType = 1
)

func OrderTypeFor(s Side) OrderType {
	if s == SideSell {
		return OrderTypeSell
	}
	return OrderTypeBuy
}

func (t OrderType) Side() Side {
	if t == OrderTypeSell {
		return SideSell
	}
	return SideBuy
}

func (t OrderType) Opposite() OrderType {
	if t == OrderTypeSell {
		return OrderTypeBuy
	}
	return OrderTypeSell
}

type TradeAction int

const (
	TradeActionDeal TradeAction = 1
	TradeActionSLTP TradeAction = 6
)

type FillingMode int

const (
	FillingFOK FillingMode = 0
	FillingIOC FillingMode = 1
)

type TimeMode int

const TimeGTC TimeMode = 0

type DealEntry int

const (
	DealEntryIn    DealEntry = 0
	DealEntryOut   DealEntry = 1
	DealEntryInOut DealEntry = 2
	DealEntryOutBy DealEntry = 3
)

const (
	RetcodePlaced      = 10008
	RetcodeDone        = 10009
	RetcodeDonePartial = 10010
)

type AccountInfo struct {
	Login      int64   `json:"login"`
	Server     string  `json:"server"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"margin_free"`
	Leverage   int64   `json:"leverage"`
	Currency   string  `json:"currency"`
}

type SymbolInfo struct {
	Name         string  `json:"name"`
	Digits       int     `json:"digits"`
	Point        float64 `json:"point"`
	VolumeMin    float64 `json:"volume_min"`
	VolumeMax    float64 `json:"volume_max"`
	VolumeStep   float64 `json:"volume_step"`
	ContractSize float64 `json:"trade_contract_size"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Visible      bool    `json:"visible"`
}

type Tick struct {
	Bid  float64   `json:"bid"`
	Ask  float64   `json:"ask"`
	Last float64   `json:"last"`
	Time time.Time `json:"time"`
}

type Position struct {
	Ticket    int64     `json:"ticket"`
	Symbol    string    `json:"symbol"`
	Type      OrderType `json:"type"`
	Volume    float64   `json:"volume"`
	PriceOpen float64   `json:"price_open"`
	SL        float64   `json:"sl"`
	TP        float64   `json:"tp"`
	Magic     int64     `json:"magic"`
	Comment   string    `json:"comment"`
	Profit    float64   `json:"profit"`
}

type Deal struct {
	Ticket     int64     `json:"ticket"`
	Order      int64     `json:"order"`
	PositionID int64     `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Type       OrderType `json:"type"`
	Entry      DealEntry `json:"entry"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	Profit     float64   `json:"profit"`
	Swap       float64   `json:"swap"`
	Commission float64   `json:"commission"`
	Fee        float64   `json:"fee"`
	Magic      int64     `json:"magic"`
	Comment    string    `json:"comment"`
	Time       time.Time `json:"time"`
}

type OrderRequest struct {
	Action      TradeAction `json:"action"`
	Symbol      string      `json:"symbol"`
	Volume      float64     `json:"volume,omitempty"`
	Type        OrderType   `json:"type"`
	Price       float64     `json:"price,omitempty"`
	SL          float64     `json:"sl"`
	TP          float64     `json:"tp"`
	Deviation   int         `json:"deviation,omitempty"`
	Magic       int64       `json:"magic,omitempty"`
	Comment     string      `json:"comment,omitempty"`
	Position    int64       `json:"position,omitempty"`
	TypeTime    TimeMode    `json:"type_time"`
	TypeFilling FillingMode `json:"type_filling"`
}

type OrderResult struct {
	Retcode int     `json:"retcode"`
	Deal    int64   `json:"deal"`
	Order   int64   `json:"order"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price"`
	Comment string  `json:"comment"`
}

func (r OrderResult) OK() bool {
	return r.Retcode == RetcodeDone || r.Retcode == RetcodePlaced || r.Retcode == RetcodeDonePartial
}

// PositionFilter narrows PositionsGet. Zero values match everything.
type PositionFilter struct {
	Symbol string `json:"symbol,omitempty"`
	Ticket int64  `json:"ticket,omitempty"`
}

// DealFilter narrows HistoryDeals by deal ticket or by position id.
type DealFilter struct {
	Ticket   int64 `json:"ticket,omitempty"`
	Position int64 `json:"position,omitempty"`
}
