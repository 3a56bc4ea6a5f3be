package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
	"github.com/arturoeanton/icd11-rag-ollama/internal/service"
)

// RAGHandler handles ICD-11 question answering endpoints.
type RAGHandler struct {
	ragService *service.RAGService
	timeout    time.Duration
}

// NewRAGHandler creates a new RAG handler. timeout bounds each model call.
func NewRAGHandler(ragService *service.RAGService, timeout time.Duration) *RAGHandler {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &RAGHandler{ragService: ragService, timeout: timeout}
}

// Register sets up RAG routes.
func (h *RAGHandler) Register(router fiber.Router) {
	rag := router.Group("/rag")
	rag.Post("/query", h.Query)
	rag.Post("/search", h.Search)
	rag.Post("/stream", h.Stream)
}

type questionRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// Query answers a question with retrieved ICD-11 context.
func (h *RAGHandler) Query(c fiber.Ctx) error {
	var body questionRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	answer, err := h.ragService.Ask(ctx, body.Question, body.TopK)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(answer)
}

// Search returns the ranked ICD-11 entries without calling the model.
func (h *RAGHandler) Search(c fiber.Ctx) error {
	var body questionRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	query, sources, err := h.ragService.Search(c.Context(), body.Question, body.TopK)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"query":   query,
		"sources": sources,
	})
}

// Stream answers a question as Server-Sent Events: one "sources" event,
// "token" events while the model generates, then "done".
func (h *RAGHandler) Stream(c fiber.Ctx) error {
	var body questionRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	// The writer outlives the handler, so the stream gets its own context.
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	sources, tokens, err := h.ragService.Stream(ctx, body.Question, body.TopK)
	if err != nil {
		cancel()
		return errorResponse(c, err)
	}

	setSSEHeaders(c)
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		writeEvent(w, "sources", sources)
		if err := w.Flush(); err != nil {
			return
		}
		for tok := range tokens {
			writeEvent(w, "token", fiber.Map{"token": tok})
			if err := w.Flush(); err != nil {
				slog.Warn("stream client disconnected", "error", err)
				return
			}
		}
		writeEvent(w, "done", fiber.Map{"ok": true})
		w.Flush()
	})
}

func writeEvent(w *bufio.Writer, event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(data))
}

// errorResponse maps service errors to HTTP status codes.
func errorResponse(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, port.ErrEmptyQuestion):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, port.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, port.ErrDimensionMismatch):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "model timed out"})
	default:
		slog.Error("request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
