package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "CopyFabric/pkg/logger"
)

// RequestLogging logs one line per HTTP request at debug level, or warn for
// client and server errors.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)

			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", req.RemoteAddr),
				applogger.Int("status", res.Status),
				applogger.Duration("latency", time.Since(start)),
			}
			if res.Status >= 400 {
				l.Warn("http request", fields...)
			} else {
				l.Debug("http request", fields...)
			}
			return err
		}
	}
}
