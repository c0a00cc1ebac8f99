// Package sizing turns a master lot into a broker-legal follower lot.
package sizing

import (
	"github.com/shopspring/decimal"

	"CopyFabric/internal/domain/models"
)

const (
	DefaultContractSize = 100000
	DefaultLeverage     = 500
	minPlaces           = 2
)

var hundred = decimal.NewFromInt(100)

// Limits are the broker's volume rules for a symbol.
type Limits struct {
	Step decimal.Decimal
	Min  decimal.Decimal
	Max  decimal.Decimal
}

// LimitsOf reads the volume rules from symbol info, filling in a 0.01 step
// and a step-sized minimum when the broker reports none.
func LimitsOf(sym models.SymbolInfo) Limits {
	step := decimal.NewFromFloat(sym.VolumeStep)
	if !step.IsPositive() {
		step = decimal.New(1, -2)
	}
	min := decimal.NewFromFloat(sym.VolumeMin)
	if !min.IsPositive() {
		min = step
	}
	max := decimal.NewFromFloat(sym.VolumeMax)
	if !max.IsPositive() {
		max = decimal.Zero
	}
	return Limits{Step: step, Min: min, Max: max}
}

// places is the decimal precision results are reported with.
func (l Limits) places() int32 {
	p := -l.Step.Exponent()
	if p < minPlaces {
		return minPlaces
	}
	return p
}

// Round snaps v to the nearest step multiple; exact halves go to the even multiple.
func (l Limits) Round(v decimal.Decimal) decimal.Decimal {
	return v.Div(l.Step).RoundBank(0).Mul(l.Step)
}

func (l Limits) clamp(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(l.Min) {
		v = l.Min
	}
	if l.Max.IsPositive() && v.GreaterThan(l.Max) {
		v = l.Max
	}
	return v
}

func (l Limits) float(v decimal.Decimal) float64 {
	f, _ := v.Round(l.places()).Float64()
	return f
}

// Input carries everything Calculate needs from the follower's account.
type Input struct {
	MasterLot   float64
	RiskPercent float64
	// Price is the expected fill price; zero falls back to the symbol quote.
	Price   float64
	Account models.AccountInfo
	Symbol  models.SymbolInfo
}

// Calculate returns the follower lot, or 0 when the trade must be skipped
// because free margin does not cover even the minimum lot.
func Calculate(in Input) float64 {
	lim := LimitsOf(in.Symbol)
	raw := decimal.NewFromFloat(in.MasterLot).Mul(decimal.NewFromFloat(in.RiskPercent)).Div(hundred)
	if !raw.IsPositive() {
		return 0
	}
	lot := lim.clamp(lim.Round(raw))

	price := in.Price
	if price <= 0 {
		price = in.Symbol.Ask
	}
	if price <= 0 {
		price = in.Symbol.Bid
	}
	if price <= 0 {
		return lim.float(lot)
	}

	free := decimal.NewFromFloat(in.Account.FreeMargin)
	if free.LessThan(Margin(lot, price, in.Symbol.ContractSize, in.Account.Leverage)) {
		if free.GreaterThanOrEqual(Margin(lim.Min, price, in.Symbol.ContractSize, in.Account.Leverage)) {
			return lim.float(lim.Min)
		}
		return 0
	}
	return lim.float(lot)
}

// Margin estimates the margin a lot needs: lot × contract × price / leverage.
func Margin(lot decimal.Decimal, price, contractSize float64, leverage int64) decimal.Decimal {
	if contractSize <= 0 {
		contractSize = DefaultContractSize
	}
	if leverage <= 0 {
		leverage = DefaultLeverage
	}
	return lot.Mul(decimal.NewFromFloat(contractSize)).
		Mul(decimal.NewFromFloat(price)).
		Div(decimal.NewFromInt(leverage))
}

// CloseVolume sizes a close of raw lots against an open position. full is
// true when the whole position goes.
func CloseVolume(positionVolume, raw float64, sym models.SymbolInfo) (volume float64, full bool) {
	lim := LimitsOf(sym)
	pos := decimal.NewFromFloat(positionVolume)
	r := decimal.NewFromFloat(raw)
	if r.GreaterThanOrEqual(pos) {
		return positionVolume, true
	}

	v := lim.Round(r)
	if v.LessThan(lim.Min) {
		v = lim.Min
	}
	if v.GreaterThanOrEqual(pos) {
		return positionVolume, true
	}
	return lim.float(v), false
}

// Remainder is what stays open after closing vol of pos, on the step grid.
func Remainder(positionVolume, closed float64, sym models.SymbolInfo) float64 {
	lim := LimitsOf(sym)
	rest := decimal.NewFromFloat(positionVolume).Sub(decimal.NewFromFloat(closed))
	if !rest.IsPositive() {
		return 0
	}
	return lim.float(rest)
}
