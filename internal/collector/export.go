package collector

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the default registry in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// ExposeWebMetrics mounts the scrape endpoint on e.
func (mc *MetricsCollector) ExposeWebMetrics(e *echo.Echo) {
	e.GET("/metrics/prometheus", echo.WrapHandler(mc.Handler()))
}
