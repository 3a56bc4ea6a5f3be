package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
)

// HealthChecker reports whether a backend is reachable.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// HealthHandler reports liveness of the server and its dependencies.
type HealthHandler struct {
	appName string
	model   string
	ollama  HealthChecker
	records port.RecordStore
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(appName, model string, ollama HealthChecker, records port.RecordStore) *HealthHandler {
	return &HealthHandler{appName: appName, model: model, ollama: ollama, records: records}
}

// Register sets up the health route.
func (h *HealthHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
}

// Health returns "healthy" when the model endpoint answers, "degraded" otherwise.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	ollamaUp := h.ollama == nil || h.ollama.IsHealthy(ctx)
	records, err := h.records.CountRecords(ctx)
	status := "healthy"
	if !ollamaUp || err != nil {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":  status,
		"app":     h.appName,
		"model":   h.model,
		"ollama":  ollamaUp,
		"records": records,
	})
}
