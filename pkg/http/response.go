package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes data inside the standard envelope.
func DataResponse(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusOK, data)
}

func BadRequestResponse(c echo.Context, data any) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// AppErrorResponse renders an *AppError with its own status. Anything else
// is a 500 with no detail leaked.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return DataResponse(c, appErr.Status, []FieldError{appErr.FieldError()})
	}
	return DataResponse(c, http.StatusInternalServerError, "internal error")
}
