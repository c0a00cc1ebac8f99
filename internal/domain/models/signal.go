package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"CopyFabric/pkg/util"
)

var ErrInvalidSignal = errors.New("invalid signal")

type Action string

const (
	ActionOpen   Action = "OPEN"
	ActionModify Action = "MODIFY"
	ActionClose  Action = "CLOSE"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// AnySymbol on a CLOSE signal widens the position scan to every symbol.
const AnySymbol = "*"

// Signal is one master position event.
type Signal struct {
	MasterID    string  `json:"masterId"`
	Ticket      int64   `json:"ticket"`
	Action      Action  `json:"action"`
	Symbol      string  `json:"symbol"`
	Type        Side    `json:"type,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
	Pct         float64 `json:"pct,omitempty"`
	Price       float64 `json:"price,omitempty"`
	SL          float64 `json:"sl"`
	TP          float64 `json:"tp"`
	MasterEntry float64 `json:"master_entry,omitempty"`
	Timestamp   float64 `json:"timestamp"`
}

// Time returns the signal's event time.
func (s Signal) Time() time.Time {
	return util.EpochTime(s.Timestamp)
}

// Age is how old the signal is relative to now.
func (s Signal) Age(now time.Time) time.Duration {
	return now.Sub(s.Time())
}

// Validate checks the per-action field requirements.
func (s Signal) Validate() error {
	if strings.TrimSpace(s.MasterID) == "" {
		return fmt.Errorf("%w: masterId is required", ErrInvalidSignal)
	}
	if s.Ticket <= 0 {
		return fmt.Errorf("%w: ticket must be positive", ErrInvalidSignal)
	}
	if s.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidSignal)
	}
	switch s.Action {
	case ActionOpen:
		if s.Symbol == "" || s.Symbol == AnySymbol {
			return fmt.Errorf("%w: OPEN needs a concrete symbol", ErrInvalidSignal)
		}
		if s.Volume <= 0 {
			return fmt.Errorf("%w: OPEN volume must be positive", ErrInvalidSignal)
		}
		if !s.Type.Valid() {
			return fmt.Errorf("%w: OPEN type must be BUY or SELL", ErrInvalidSignal)
		}
	case ActionModify:
		if s.SL == 0 && s.TP == 0 {
			return fmt.Errorf("%w: MODIFY needs sl or tp", ErrInvalidSignal)
		}
	case ActionClose:
		if s.Pct < 0 || s.Pct > 1 {
			return fmt.Errorf("%w: pct must be within [0,1]", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, s.Action)
	}
	return nil
}

// signalWire accepts the loose shapes broadcasters emit: numeric or string
// ids and tickets, snake or camel case keys.
type signalWire struct {
	MasterID     any    `json:"masterId"`
	MasterIDAlt  any    `json:"master_id"`
	Ticket       any    `json:"ticket"`
	Action       string `json:"action"`
	Symbol       string `json:"symbol"`
	Type         string `json:"type"`
	Volume       any    `json:"volume"`
	Pct          any    `json:"pct"`
	Price        any    `json:"price"`
	SL           any    `json:"sl"`
	TP           any    `json:"tp"`
	MasterEntry  any    `json:"master_entry"`
	MasterEntry2 any    `json:"masterEntry"`
	Timestamp    any    `json:"timestamp"`
}

func (s *Signal) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var w signalWire
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}

	out := Signal{
		Action: Action(strings.ToUpper(strings.TrimSpace(w.Action))),
		Symbol: strings.TrimSpace(w.Symbol),
		Type:   Side(strings.ToUpper(strings.TrimSpace(w.Type))),
	}

	masterID := w.MasterID
	if masterID == nil {
		masterID = w.MasterIDAlt
	}
	if masterID != nil {
		out.MasterID = strings.TrimSpace(fmt.Sprint(masterID))
	}

	if w.Ticket != nil {
		t, err := util.ExtractInt(w.Ticket)
		if err != nil {
			return fmt.Errorf("%w: ticket: %v", ErrInvalidSignal, err)
		}
		out.Ticket = t
	}

	entry := w.MasterEntry
	if entry == nil {
		entry = w.MasterEntry2
	}

	floats := []struct {
		name string
		src  any
		dst  *float64
	}{
		{"volume", w.Volume, &out.Volume},
		{"pct", w.Pct, &out.Pct},
		{"price", w.Price, &out.Price},
		{"sl", w.SL, &out.SL},
		{"tp", w.TP, &out.TP},
		{"master_entry", entry, &out.MasterEntry},
	}
	for _, f := range floats {
		v, err := util.ExtractFloat(f.src)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSignal, f.name, err)
		}
		*f.dst = v
	}

	switch ts := w.Timestamp.(type) {
	case nil:
	case string:
		if t, ok := util.ParseTime(ts); ok {
			out.Timestamp = float64(t.UnixNano()) / 1e9
		} else {
			return fmt.Errorf("%w: timestamp %q", ErrInvalidSignal, ts)
		}
	default:
		v, err := util.ExtractFloat(ts)
		if err != nil {
			return fmt.Errorf("%w: timestamp: %v", ErrInvalidSignal, err)
		}
		out.Timestamp = v
	}

	*s = out
	return nil
}

// ParseSignal decodes and validates a channel payload.
func ParseSignal(data []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(data, &s); err != nil {
		if errors.Is(err, ErrInvalidSignal) {
			return Signal{}, err
		}
		return Signal{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}
