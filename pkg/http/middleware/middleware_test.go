package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "5xx", statusClass(0))
}

func TestRouteLabel(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/signals?x=1", nil)
	assert.Equal(t, "unmatched", routeLabel(r))
	assert.Equal(t, "/api/signals", routeLabel(WithRoute(r, "/api/signals")))
}

func TestRecoverAndMetrics(t *testing.T) {
	e := echo.New()
	e.Use(Recover(nil))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(WithRoute(c.Request(), c.Path()))
			return next(c)
		}
	})
	e.Use(echo.WrapMiddleware(Metrics(nil, 0)))
	e.GET("/boom", func(echo.Context) error { panic("kaboom") })
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
