package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/icd11-rag-ollama/internal/domain"
	"github.com/arturoeanton/icd11-rag-ollama/internal/service"
)

// ChatHandler backs the web UI conversation.
type ChatHandler struct {
	ragService *service.RAGService
	timeout    time.Duration
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(ragService *service.RAGService, timeout time.Duration) *ChatHandler {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ChatHandler{ragService: ragService, timeout: timeout}
}

// Register sets up chat routes.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Post("/chat", h.Chat)
}

// Chat answers a message and returns the updated role-based history.
func (h *ChatHandler) Chat(c fiber.Ctx) error {
	var body struct {
		Message string               `json:"message"`
		History []domain.ChatMessage `json:"history"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	chatCtx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	history, answer, err := h.ragService.Chat(chatCtx, body.Message, body.History)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"history": history,
		"answer":  answer.Text,
		"sources": answer.Sources,
		"cached":  answer.Cached,
	})
}
