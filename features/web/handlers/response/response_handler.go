package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Success returns a standardized success response
func Success(c echo.Context, data any) error {
	return SuccessWithStatus(c, http.StatusOK, data)
}

func SuccessWithStatus(c echo.Context, code int, data any) error {
	return c.JSON(code, map[string]any{
		"success": true,
		"data":    data,
	})
}

// Error returns a standardized error response
func Error(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]any{
		"success": false,
		"error":   message,
	})
}

// ErrorWithDetails returns an error response with additional details
func ErrorWithDetails(c echo.Context, code int, message string, details any) error {
	return c.JSON(code, map[string]any{
		"success": false,
		"error":   message,
		"details": details,
	})
}

// BadRequest returns a standardized bad request response
func BadRequest(c echo.Context, message string) error {
	return Error(c, http.StatusBadRequest, message)
}

// FromError maps err onto a status using the first matching entry of codes,
// falling back to 500.
func FromError(c echo.Context, err error, codes map[error]int) error {
	for target, code := range codes {
		if errors.Is(err, target) {
			return Error(c, code, err.Error())
		}
	}
	c.Logger().Error(err)
	return Error(c, http.StatusInternalServerError, err.Error())
}
