package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/arturoeanton/icd11-rag-ollama/internal/app"
	"github.com/arturoeanton/icd11-rag-ollama/internal/service"
	"github.com/arturoeanton/icd11-rag-ollama/internal/tui"
	"github.com/arturoeanton/icd11-rag-ollama/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	// keep log lines out of the alternate screen
	if f, err := tea.LogToFile("chat.log", "icd11"); err == nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))
		defer f.Close()
	}

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open vector store:", err)
		os.Exit(1)
	}
	defer stores.Close()

	expander, err := app.NewExpander(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load synonyms:", err)
		os.Exit(1)
	}
	answerCache, closeCache := app.NewAnswerCache(ctx, cfg)
	defer closeCache()

	ollamaAI := app.NewAI(cfg)
	rag := service.NewRAGService(ollamaAI, stores.Records, expander, answerCache, cfg.TopK)

	count, err := stores.Records.CountRecords(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "count records:", err)
		os.Exit(1)
	}
	summary := fmt.Sprintf("%d records in %s store, model %s", count, cfg.VectorStore, ollamaAI.ModelName())

	p := tea.NewProgram(tui.New(rag, cfg.TopK, cfg.LLMTimeout, summary), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		os.Exit(1)
	}
}
