package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"collateral-loan-service/internal/provider"
)

type Handler struct{ registry *provider.Registry }

func NewHandler(registry *provider.Registry) *Handler { return &Handler{registry: registry} }

// Health reports service liveness plus per-provider reachability.
func (h *Handler) Health(c echo.Context) error {
	providers := map[string]bool{}
	if h.registry != nil {
		for _, a := range h.registry.All() {
			providers[a.ID()] = a.HealthCheck(c.Request().Context())
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"time":      time.Now().UTC().Format(time.RFC3339Nano),
		"providers": providers,
	})
}
