package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignalShapes(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		check   func(t *testing.T, s Signal)
	}{
		{
			name:    "camel with string ticket",
			payload: `{"masterId":"u-1","ticket":"123","action":"open","symbol":"EURUSD","type":"buy","volume":0.37,"price":1.1,"sl":0,"tp":0,"timestamp":1735689600}`,
			check: func(t *testing.T, s Signal) {
				assert.Equal(t, "u-1", s.MasterID)
				assert.Equal(t, int64(123), s.Ticket)
				assert.Equal(t, ActionOpen, s.Action)
				assert.Equal(t, SideBuy, s.Type)
				assert.InDelta(t, 0.37, s.Volume, 1e-12)
			},
		},
		{
			name:    "numeric master and snake keys",
			payload: `{"master_id":5012345,"ticket":77,"action":"MODIFY","symbol":"XAUUSD","sl":1990,"tp":0,"master_entry":"2000.5","timestamp":1735689600.25}`,
			check: func(t *testing.T, s Signal) {
				assert.Equal(t, "5012345", s.MasterID)
				assert.InDelta(t, 2000.5, s.MasterEntry, 1e-9)
				assert.Equal(t, int64(1735689600), s.Time().Unix())
			},
		},
		{
			name:    "close with pct and wildcard",
			payload: `{"masterId":"m","ticket":9,"action":"CLOSE","symbol":"*","pct":0.5,"timestamp":"2025-01-01T00:00:00Z"}`,
			check: func(t *testing.T, s Signal) {
				assert.Equal(t, AnySymbol, s.Symbol)
				assert.InDelta(t, 0.5, s.Pct, 1e-12)
				assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), s.Time().Unix())
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseSignal([]byte(tc.payload))
			require.NoError(t, err)
			tc.check(t, s)
		})
	}
}

func TestParseSignalRejects(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"masterId":`,
		"no master":        `{"ticket":1,"action":"CLOSE","symbol":"X","timestamp":1}`,
		"no ticket":        `{"masterId":"m","action":"CLOSE","symbol":"X","timestamp":1}`,
		"zero ticket":      `{"masterId":"m","ticket":0,"action":"CLOSE","symbol":"X","timestamp":1}`,
		"open no volume":   `{"masterId":"m","ticket":1,"action":"OPEN","symbol":"X","type":"BUY","timestamp":1}`,
		"open no side":     `{"masterId":"m","ticket":1,"action":"OPEN","symbol":"X","volume":1,"timestamp":1}`,
		"modify no level":  `{"masterId":"m","ticket":1,"action":"MODIFY","symbol":"X","timestamp":1}`,
		"pct out of range": `{"masterId":"m","ticket":1,"action":"CLOSE","symbol":"X","pct":1.5,"timestamp":1}`,
		"bad ticket":       `{"masterId":"m","ticket":"abc","action":"CLOSE","symbol":"X","timestamp":1}`,
		"unknown action":   `{"masterId":"m","ticket":1,"action":"HEDGE","symbol":"X","timestamp":1}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSignal([]byte(payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSignal), "expected ErrInvalidSignal, got %v", err)
		})
	}
}

func TestTradeResultEgressJSON(t *testing.T) {
	r := TradeResult{
		AccountID:     "f1",
		Status:        StatusSuccess,
		ExecutionTime: 1250 * time.Millisecond,
		DealID:        42,
		Message:       "Executed",
		Action:        ActionOpen,
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "1.250s", got["executionTime"])
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, "OPEN", got["type"])
	assert.Equal(t, "f1", got["accountId"])
	assert.False(t, strings.Contains(string(b), "ExecutionTime"))
}

func TestFollowerDefaults(t *testing.T) {
	f := FollowerConfig{IsPremium: true}
	assert.Equal(t, DefaultRiskFactor, f.RiskPercent())
	assert.Equal(t, PriorityPremium, f.Priority())
	assert.Equal(t, PriorityFree, FollowerConfig{}.Priority())
}
