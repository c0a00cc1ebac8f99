package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopyFabric/pkg/http/middleware"
)

type orderRequest struct {
	Symbol string  `json:"symbol" validate:"required"`
	Side   string  `json:"side" validate:"omitempty,oneof=BUY SELL"`
	Pct    float64 `json:"pct" default:"1" validate:"gte=0,lte=1"`
}

func newContext(body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestReadAndValidateRequest(t *testing.T) {
	c, _ := newContext(`{"symbol":"EURUSD"}`)
	req := &orderRequest{}
	require.Nil(t, ReadAndValidateRequest(c, req))
	assert.Equal(t, 1.0, req.Pct)

	c, _ = newContext(`{"side":"HOLD","pct":2}`)
	errs := ReadAndValidateRequest(c, &orderRequest{})
	require.Len(t, errs, 3)
	codes := map[string]string{}
	for _, fe := range errs {
		codes[fe.Field] = fe.Code
	}
	assert.Equal(t, "ERR_REQUIRED", codes["Symbol"])
	assert.Equal(t, "ERR_ONEOF", codes["Side"])
	assert.Equal(t, "ERR_LTE", codes["Pct"])

	c, _ = newContext(`{"symbol":`)
	errs = ReadAndValidateRequest(c, &orderRequest{})
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}

func TestAppErrorResponse(t *testing.T) {
	c, rec := newContext("")
	cause := errors.New("pool closed")
	require.NoError(t, AppErrorResponse(c, NewAppError("ERR_DISPATCH", "", "dispatch failed", http.StatusServiceUnavailable).WithError(cause)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pool closed")

	var env struct {
		Status int          `json:"status"`
		Data   []FieldError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "ERR_DISPATCH", env.Data[0].Code)

	c, rec = newContext("")
	require.NoError(t, AppErrorResponse(c, cause))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	e := echo.New()
	e.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins: []string{"https://ops.example"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
	e.POST("/api/signals", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) })

	req := httptest.NewRequest(http.MethodOptions, "/api/signals", nil)
	req.Header.Set(echo.HeaderOrigin, "https://ops.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))

	req = httptest.NewRequest(http.MethodPost, "/api/signals", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
