package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	applogger "CopyFabric/pkg/logger"
)

// Recover turns a handler panic into a 500 in the usual envelope.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				l.Error("http handler panic",
					applogger.String("route", c.Path()),
					applogger.String("panic", fmt.Sprint(r)),
					applogger.String("stack", string(debug.Stack())),
				)
				if !c.Response().Committed {
					err = c.JSON(http.StatusInternalServerError, map[string]any{
						"status":  http.StatusInternalServerError,
						"message": http.StatusText(http.StatusInternalServerError),
					})
				}
			}()
			return next(c)
		}
	}
}
