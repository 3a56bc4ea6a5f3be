package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"github.com/arturoeanton/icd11-rag-ollama/internal/adapter/who"
	"github.com/arturoeanton/icd11-rag-ollama/internal/app"
	"github.com/arturoeanton/icd11-rag-ollama/internal/service"
	"github.com/arturoeanton/icd11-rag-ollama/pkg/config"

	_ "github.com/lib/pq"
)

const usage = `usage: indexer <command> [flags]

commands:
  token        print a WHO ICD-11 API bearer token
  fetch        crawl the ICD-11 foundation into a directory of JSON files
  preprocess   convert JSON files to text, embed them and fill the vector store
`

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "token":
		err = runToken(ctx, cfg)
	case "fetch":
		err = runFetch(ctx, cfg, os.Args[2:])
	case "preprocess":
		err = runPreprocess(ctx, cfg, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("interrupted")
			os.Exit(130)
		}
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func tokenConfig(cfg *config.Config) who.TokenConfig {
	return who.TokenConfig{
		ClientID:     cfg.WHOClientID,
		ClientSecret: cfg.WHOClientSecret,
		TokenURL:     cfg.WHOTokenURL,
	}
}

func runToken(ctx context.Context, cfg *config.Config) error {
	tok, err := who.FetchToken(ctx, tokenConfig(cfg))
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func runFetch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	outDir := fs.String("out", cfg.RawJSONDir, "directory for <id>.json files")
	roots := fs.String("roots", strings.Join(cfg.WHORoots, ","), "comma-separated root entity URIs or saved root JSON files")
	delay := fs.Duration("delay", cfg.FetchDelay, "pause between requests")
	maxEntities := fs.Int("max", cfg.MaxEntities, "stop after this many downloads (0 = no limit)")
	staticToken := fs.String("token", "", "use this bearer token instead of client credentials")
	fs.Parse(args)

	var tokens oauth2.TokenSource
	if *staticToken != "" {
		tokens = who.StaticToken(strings.TrimPrefix(*staticToken, "Bearer "))
	} else {
		ts, err := who.NewTokenSource(ctx, tokenConfig(cfg))
		if err != nil {
			return err
		}
		tokens = ts
	}

	client, err := who.NewClient(who.ClientConfig{
		BaseURL:    cfg.WHOBaseURL,
		ReleaseID:  cfg.WHOReleaseID,
		Language:   cfg.WHOLanguage,
		MaxRetries: 3,
	}, tokens)
	if err != nil {
		return err
	}

	var rootList []string
	for _, r := range strings.Split(*roots, ",") {
		if r = strings.TrimSpace(r); r != "" {
			rootList = append(rootList, r)
		}
	}

	start := time.Now()
	stats, err := service.NewFetchService(client, *outDir, *delay, *maxEntities).Crawl(ctx, rootList)
	slog.Info("fetch finished",
		"fetched", stats.Fetched,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"out", *outDir,
		"elapsed", time.Since(start).Round(time.Second),
	)
	return err
}

func runPreprocess(ctx context.Context, cfg *config.Config, args []string) error {
	opts := app.PreprocessOptions(cfg)

	fs := flag.NewFlagSet("preprocess", flag.ExitOnError)
	fs.StringVar(&opts.JSONDir, "json-dir", opts.JSONDir, "folder with ICD-11 raw JSON files")
	fs.StringVar(&opts.TextDir, "txt-dir", opts.TextDir, "output folder for cleaned .txt files (optional)")
	fs.BoolVar(&opts.SkipMissingDefinitions, "skip-missing-defs", opts.SkipMissingDefinitions, "skip ICD entries without definitions")
	fs.IntVar(&opts.ChunkSize, "chunk-size", opts.ChunkSize, "split texts longer than this many characters (0 = one record per entity)")
	fs.IntVar(&opts.ChunkOverlap, "chunk-overlap", opts.ChunkOverlap, "characters shared by consecutive chunks")
	fs.IntVar(&opts.BatchSize, "batch-size", opts.BatchSize, "texts embedded per request")
	fs.BoolVar(&opts.Reset, "reset", false, "delete all stored records first")
	fs.Parse(args)

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	svc := service.NewPreprocessService(app.NewAI(cfg), stores.Records)
	lastLogged := time.Now()
	stats, err := svc.Run(ctx, opts, func(stage string, done, total int) {
		if done == total || time.Since(lastLogged) > 5*time.Second {
			slog.Info("progress", "stage", stage, "done", done, "total", total)
			lastLogged = time.Now()
		}
	})
	slog.Info("preprocess finished",
		"total", stats.Total,
		"records", stats.Records,
		"skipped_missing_defs", stats.SkippedMissingDefs,
		"failed", stats.Failed,
	)
	return err
}
