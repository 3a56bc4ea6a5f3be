package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/arturoeanton/icd11-rag-ollama/internal/app"
	"github.com/arturoeanton/icd11-rag-ollama/internal/handler"
	"github.com/arturoeanton/icd11-rag-ollama/internal/mcp"
	"github.com/arturoeanton/icd11-rag-ollama/internal/middleware"
	"github.com/arturoeanton/icd11-rag-ollama/internal/service"
	"github.com/arturoeanton/icd11-rag-ollama/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()
	ctx := context.Background()

	slog.Info("🚀 Starting ICD-11 assistant",
		"port", cfg.Port,
		"vector_store", cfg.VectorStore,
		"ollama_embed", cfg.OllamaEmbedURL,
		"ollama_chat", cfg.OllamaChatURL,
		"chat_model", cfg.OllamaChatModel,
		"mcp_enabled", cfg.MCPEnabled,
	)

	// ── Storage ──────────────────────────────────────────────────────────
	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open vector store", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	answerCache, closeCache := app.NewAnswerCache(ctx, cfg)
	defer closeCache()

	// ── Adapters & services ──────────────────────────────────────────────
	ollamaAI := app.NewAI(cfg)

	expander, err := app.NewExpander(cfg)
	if err != nil {
		slog.Error("failed to load synonyms", "error", err)
		os.Exit(1)
	}

	ragService := service.NewRAGService(ollamaAI, stores.Records, expander, answerCache, cfg.TopK)
	preprocessService := service.NewPreprocessService(ollamaAI, stores.Records)

	var auditWriter middleware.AuditWriter = middleware.LogAuditWriter{}
	var auditLister handler.AuditLister
	if stores.Postgres != nil {
		auditWriter = stores.Postgres
		auditLister = stores.Postgres
	}

	// ── Fiber App ────────────────────────────────────────────────────────
	fiberApp := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
	})

	// Global middleware
	fiberApp.Use(recover.New())
	fiberApp.Use(fiberlogger.New())
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
	}))
	fiberApp.Use(middleware.AuditMiddleware(auditWriter))

	// ── Public Routes ────────────────────────────────────────────────────
	handler.NewUIHandler().Register(fiberApp)

	api := fiberApp.Group("/api/v1")
	handler.NewHealthHandler(cfg.AppName, ollamaAI.ModelName(), ollamaAI, stores.Records).Register(api)
	handler.NewRAGHandler(ragService, cfg.LLMTimeout).Register(api)
	handler.NewChatHandler(ragService, cfg.LLMTimeout).Register(api)

	// ── Admin Routes ─────────────────────────────────────────────────────
	if cfg.AdminToken != "" {
		admin := api.Group("/admin", middleware.AdminAuth(cfg.AdminToken))
		handler.NewAdminHandler(
			preprocessService,
			app.PreprocessOptions(cfg),
			stores.Records,
			handler.NewJobTracker(),
			auditLister,
			auditWriter,
		).Register(admin)
	} else {
		slog.Warn("ADMIN_TOKEN not set, admin routes disabled")
	}

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(ragService, auditWriter, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := fiberApp.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
