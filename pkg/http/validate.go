package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// ReadAndValidateRequest binds the body into req, applies `default` tags and
// runs `validate` tags. It returns nil or the list of field errors to send
// back as a 400.
func ReadAndValidateRequest(c echo.Context, req any) []FieldError {
	if err := c.Bind(req); err != nil {
		return toFieldErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toFieldErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toFieldErrors(err)
	}
	return nil
}

func toFieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: fieldMessage(fe),
				Param:   fe.Param(),
			})
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []FieldError{{Code: "ERR_BIND", Message: fmt.Sprint(he.Message)}}
	}
	return []FieldError{{Code: "ERR_BIND", Message: err.Error()}}
}

func fieldMessage(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return f + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", f, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", f, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", f, fe.Tag())
}
