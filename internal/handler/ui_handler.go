package handler

import (
	_ "embed"

	"github.com/gofiber/fiber/v3"
)

//go:embed static/index.html
var indexHTML []byte

// UIHandler serves the single-page chat UI.
type UIHandler struct{}

// NewUIHandler creates a new UI handler.
func NewUIHandler() *UIHandler {
	return &UIHandler{}
}

// Register mounts the UI at the root path.
func (h *UIHandler) Register(router fiber.Router) {
	router.Get("/", h.Index)
}

// Index serves the chat page.
func (h *UIHandler) Index(c fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(indexHTML)
}
