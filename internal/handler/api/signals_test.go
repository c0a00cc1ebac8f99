package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopyFabric/internal/domain/models"
	"CopyFabric/internal/middleware"
)

type stubDispatcher struct {
	got []models.Signal
	err error
}

func (d *stubDispatcher) Dispatch(_ context.Context, sig models.Signal) ([]models.TradeResult, error) {
	d.got = append(d.got, sig)
	if d.err != nil {
		return nil, d.err
	}
	return []models.TradeResult{{AccountID: "7001", Status: models.StatusSuccess, Message: "Executed", Action: sig.Action, ExecutionTime: 250 * time.Millisecond}}, nil
}

type stubStore struct{ err error }

func (s stubStore) Ping(context.Context) error { return s.err }

type stubPool struct{}

func (stubPool) Size() int    { return 4 }
func (stubPool) Pending() int { return 1 }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

var handlerNow = time.Unix(1_735_689_600, 0)

func newTestServer(d *stubDispatcher, store Pinger, opts ...Option) *echo.Echo {
	gate := middleware.NewSignalGate(nil, nil, middleware.WithClock(func() time.Time { return handlerNow }))
	opts = append([]Option{WithClock(func() time.Time { return handlerNow })}, opts...)
	h := NewSignalsHandler(gate, d, store, stubPool{}, opts...)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func post(e *echo.Echo, body string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(http.MethodPost, "/api/signals", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestDispatchReturnsResults(t *testing.T) {
	d := &stubDispatcher{}
	e := newTestServer(d, nil)

	rec, env := post(e, `{"masterId":"m1","ticket":11,"action":"OPEN","symbol":"EURUSD","type":"BUY","volume":0.1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var results []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "success", results[0]["status"])
	assert.Equal(t, "0.250s", results[0]["executionTime"])

	require.Len(t, d.got, 1)
	assert.Equal(t, float64(handlerNow.Unix()), d.got[0].Timestamp)
}

func TestDispatchRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing master", `{"ticket":1,"action":"CLOSE","symbol":"X"}`, http.StatusBadRequest},
		{"unknown action", `{"masterId":"m","ticket":1,"action":"HEDGE","symbol":"X"}`, http.StatusBadRequest},
		{"open without side", `{"masterId":"m","ticket":1,"action":"OPEN","symbol":"X","volume":1}`, http.StatusBadRequest},
		{"stale", `{"masterId":"m","ticket":1,"action":"CLOSE","symbol":"X","timestamp":1735689500}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &stubDispatcher{}
			rec, _ := post(newTestServer(d, nil), tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			assert.Empty(t, d.got)
		})
	}
}

func TestDispatchRateLimitedPerMaster(t *testing.T) {
	d := &stubDispatcher{}
	e := newTestServer(d, nil, WithRateLimit(RateLimit{Burst: 2, PerSecond: 0.001}))
	body := `{"masterId":"m1","ticket":1,"action":"CLOSE","symbol":"*"}`

	for i := 0; i < 2; i++ {
		rec, _ := post(e, body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, _ := post(e, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = post(e, `{"masterId":"m2","ticket":1,"action":"CLOSE","symbol":"*"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDispatchFailure(t *testing.T) {
	d := &stubDispatcher{err: errors.New("db down")}
	rec, _ := post(newTestServer(d, nil), `{"masterId":"m1","ticket":1,"action":"CLOSE","symbol":"*"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&stubDispatcher{}, stubStore{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var h healthResponse
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, 4, h.Workers)
	assert.Equal(t, 1, h.Pending)

	rec = httptest.NewRecorder()
	newTestServer(&stubDispatcher{}, stubStore{err: errors.New("refused")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
