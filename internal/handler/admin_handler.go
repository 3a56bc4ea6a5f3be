package handler

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
	"github.com/arturoeanton/icd11-rag-ollama/internal/middleware"
	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
	"github.com/arturoeanton/icd11-rag-ollama/internal/service"
)

// AuditLister reads back request audit entries.
type AuditLister interface {
	ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error)
}

// AdminHandler handles index management endpoints.
type AdminHandler struct {
	preprocess *service.PreprocessService
	defaults   service.PreprocessOptions
	records    port.RecordStore
	tracker    *JobTracker
	audit      AuditLister // nil without a database
	audits     middleware.AuditWriter
}

// NewAdminHandler creates a new admin handler. audit and audits may be nil.
func NewAdminHandler(
	preprocess *service.PreprocessService,
	defaults service.PreprocessOptions,
	records port.RecordStore,
	tracker *JobTracker,
	audit AuditLister,
	audits middleware.AuditWriter,
) *AdminHandler {
	return &AdminHandler{
		preprocess: preprocess,
		defaults:   defaults,
		records:    records,
		tracker:    tracker,
		audit:      audit,
		audits:     audits,
	}
}

// Register sets up admin routes. The caller applies authentication to router.
func (h *AdminHandler) Register(router fiber.Router) {
	router.Post("/index", h.StartIndex)
	router.Get("/stats", h.Stats)
	router.Get("/audit", h.ListAudit)
	NewJobsHandler(h.tracker).Register(router)
}

// StartIndex accepts an indexing job and returns 202 immediately.
func (h *AdminHandler) StartIndex(c fiber.Ctx) error {
	var body struct {
		Reset                  *bool `json:"reset"`
		SkipMissingDefinitions *bool `json:"skip_missing_defs"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	opts := h.defaults
	if body.Reset != nil {
		opts.Reset = *body.Reset
	}
	if body.SkipMissingDefinitions != nil {
		opts.SkipMissingDefinitions = *body.SkipMissingDefinitions
	}

	jobID := uuid.New().String()
	if !h.tracker.TryCreateJob(jobID) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "an index job is already running"})
	}

	go h.runIndex(jobID, opts)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id": jobID,
		"status": JobRunning,
	})
}

func (h *AdminHandler) runIndex(jobID string, opts service.PreprocessOptions) {
	slog.Info("index job started", "job_id", jobID, "json_dir", opts.JSONDir, "reset", opts.Reset)

	stats, err := h.preprocess.Run(context.Background(), opts, func(stage string, done, total int) {
		h.tracker.UpdateProgress(jobID, stage, done, total)
	})
	h.tracker.Finish(jobID, stats, err)

	if err != nil {
		slog.Error("index job failed", "job_id", jobID, "error", err)
	} else {
		slog.Info("index job complete", "job_id", jobID, "records", stats.Records)
	}

	if h.audits != nil {
		details := `{"records":` + strconv.Itoa(stats.Records) + `,"failed":` + strconv.Itoa(stats.Failed) + `}`
		if werr := h.audits.WriteAudit(domain.AuditActionIndexRun, "index", jobID, details, "", ""); werr != nil {
			slog.Error("failed to write audit log", "error", werr)
		}
	}
}

// Stats reports the size of the vector store.
func (h *AdminHandler) Stats(c fiber.Ctx) error {
	n, err := h.records.CountRecords(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"records":   n,
		"dimension": h.records.Dimension(),
		"indexing":  h.tracker.Running(),
	})
}

// ListAudit returns audit logs with optional filtering.
func (h *AdminHandler) ListAudit(c fiber.Ctx) error {
	if h.audit == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "audit log requires the postgres store"})
	}
	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	action := c.Query("action", "")

	logs, err := h.audit.ListAuditLogs(c.Context(), limit, action)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"count": len(logs),
	})
}
