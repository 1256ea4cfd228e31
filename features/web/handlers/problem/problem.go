package problem

import (
	"fmt"
	"net/http"

	"siteguard/features/web/handlers/response"

	"github.com/labstack/echo/v4"
)

// customHTTPErrorHandler renders pipeline errors in the response envelope.
func customHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var message any

	if httpErr, ok := err.(*echo.HTTPError); ok {
		code = httpErr.Code
		message = httpErr.Message
	} else {
		message = err.Error()
	}

	switch code {
	case http.StatusNotFound:
		if handleErr := handle404(c); handleErr != nil {
			c.Logger().Error(handleErr)
		}
		return
	case http.StatusMethodNotAllowed:
		_ = response.ErrorWithDetails(c, code, "Method Not Allowed", map[string]string{
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
		})
	default:
		if code >= http.StatusInternalServerError {
			c.Logger().Error(err)
		}
		_ = response.Error(c, code, fmt.Sprintf("%v", message))
	}
}

func MapRoutes(e *echo.Echo) {
	e.HTTPErrorHandler = customHTTPErrorHandler

	e.GET("/404", handle404)
}

func handle404(c echo.Context) error {
	return response.ErrorWithDetails(c, http.StatusNotFound, "Not Found", map[string]string{
		"path": c.Request().URL.Path,
	})
}
