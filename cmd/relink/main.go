package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagemap/relink/internal/config"
	"github.com/pagemap/relink/internal/oracle"
	"github.com/pagemap/relink/internal/pipeline"
	"github.com/pagemap/relink/internal/profiler"
	"github.com/pagemap/relink/internal/registry"
)

func main() {
	var (
		key          = flag.String("key", "", "Gemini API key, overrides GEMINI_API_KEY from the environment")
		debug        = flag.Bool("debug", false, "verbose diagnostics including AST nodes and profiler artifacts")
		allowPartial = flag.Bool("allow-partial", false, "continue even when a phase produces incomplete results, testing only")
		reprofile    = flag.Bool("reprofile", false, "delete cached rulebooks and re-run profiling, including a fresh vocabulary call")
		listPending  = flag.Bool("list-pending", false, "print documents awaiting manual vocabulary review and exit")
		mode         = flag.String("mode", "full", "vocabulary resolution mode: full, no-api, offline, manual-only or override")
		vocab        = flag.String("vocab", "", "runtime vocabulary override, used with -mode override; never stored in the registry")
	)
	flag.Parse()

	cfg := config.Load()
	if *key != "" {
		cfg.GeminiAPIKey = *key
	}

	log, err := buildLogger(cfg.LogsDir, *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *listPending {
		printPending(cfg.ReviewDir)
		return
	}

	runMode := profiler.Mode(*mode)
	switch runMode {
	case profiler.ModeFull, profiler.ModeNoAPI, profiler.ModeOffline, profiler.ModeManualOnly, profiler.ModeOverride:
	default:
		log.Error("unknown mode", "mode", *mode)
		os.Exit(1)
	}
	if runMode == profiler.ModeOverride && *vocab == "" {
		log.Error("-mode override requires -vocab")
		os.Exit(1)
	}

	ctx := context.Background()

	// Only full mode consults the layout oracle; every other mode runs
	// without a credential.
	var orc profiler.Oracle
	if runMode == profiler.ModeFull {
		if err := cfg.RequireAPIKey(); err != nil {
			log.Error("missing credential, check your .env file or the -key flag", "error", err)
			os.Exit(1)
		}
		client, err := oracle.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.APIRetryAttempts, log)
		if err != nil {
			log.Error("oracle client init failed", "error", err)
			os.Exit(1)
		}
		orc = client
	}

	store, err := registry.Open(cfg.ConfigDir, log)
	if err != nil {
		log.Error("registry init failed", "error", err)
		os.Exit(1)
	}

	engine, err := pipeline.New(cfg, store, orc, pipeline.Options{
		Mode:          runMode,
		VocabOverride: *vocab,
		Debug:         *debug,
		AllowPartial:  *allowPartial,
		Reprofile:     *reprofile,
	}, log)
	if err != nil {
		log.Error("engine init failed", "error", err)
		os.Exit(1)
	}

	banner(log, cfg, runMode, *vocab, *debug, *allowPartial, *reprofile)

	_, failed, err := engine.RunBatch(ctx)
	if err != nil {
		log.Error("batch aborted", "error", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// buildLogger wires the dual-channel setup: JSON to stdout plus a text log
// appended under the logs directory.
func buildLogger(logsDir string, debug bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logsDir, "pipeline.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pipeline log: %w", err)
	}
	handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))

	return slog.New(teeHandler{handlers: handlers}), nil
}

func banner(log *slog.Logger, cfg config.Config, mode profiler.Mode, vocab string, debug, allowPartial, reprofile bool) {
	pending, _ := registry.ListPending(cfg.ReviewDir)
	batches, _ := filepath.Glob(filepath.Join(cfg.ReviewDir, "batch_*_prompt.txt"))

	log.Info("starting relink engine",
		"mode", mode,
		"debug", debug,
		"allow_partial", allowPartial,
		"reprofile", reprofile,
		"vocab_override", vocab,
		"input_dir", cfg.InputDir,
		"output_dir", cfg.OutputDir,
		"config_dir", cfg.ConfigDir,
		"pending_review", len(pending),
		"review_batches", len(batches),
	)
}

func printPending(reviewDir string) {
	pending, err := registry.ListPending(reviewDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("%-40s | %s\n", "DOC NAME", "TIMESTAMP")
	fmt.Println(strings.Repeat("-", 65))
	for _, p := range pending {
		fmt.Printf("%-40s | %s\n", p.DocName, p.Timestamp)
	}
}
