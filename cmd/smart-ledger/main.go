package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zzjbattlefield/smart-ledger-web/internal/capture"
	"github.com/zzjbattlefield/smart-ledger-web/internal/ledger"
	"github.com/zzjbattlefield/smart-ledger-web/internal/receipt"
	"github.com/zzjbattlefield/smart-ledger-web/internal/scanning"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	fs := ff.NewFlagSet("smart-ledger")
	var (
		port             = fs.IntLong("port", 8080, "HTTP server port")
		apiURL           = fs.StringLong("api-url", "http://localhost:8888/api/v1", "Ledger backend base URL")
		apiToken         = fs.StringLong("api-token", "", "Bearer token for the ledger backend")
		dbPath           = fs.StringLong("db", "smart-ledger.db", "Database file path")
		storagePath      = fs.StringLong("storage", "./receipts", "Storage directory path")
		recognizerType   = fs.StringLong("recognizer", "remote", "Recognizer: 'remote', 'gemini' or 'ollama'")
		geminiKey        = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel      = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL        = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel      = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		requestTimeout   = fs.DurationLong("request-timeout", ledger.DefaultTimeout, "Timeout for ordinary backend calls")
		recognizeTimeout = fs.DurationLong("recognize-timeout", ledger.DefaultRecognizeTimeout, "Timeout for a single recognition")
		authUser         = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass         = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		timezone         = fs.StringLong("timezone", "Asia/Shanghai", "IANA zone used for pay times")
		logLevel         = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat        = fs.StringLong("log-format", "text", "Log format: text or json")
		showVersion      = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SMART_LEDGER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := setupLogger(*logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		slog.Error("Invalid timezone", "timezone", *timezone, "error", err)
		os.Exit(1)
	}

	client, err := ledger.NewClient(*apiURL,
		ledger.WithToken(*apiToken),
		ledger.WithTimeout(*requestTimeout),
		ledger.WithRecognizeTimeout(*recognizeTimeout),
	)
	if err != nil {
		slog.Error("Failed to create ledger client", "error", err)
		os.Exit(1)
	}
	bills := ledger.NewBills(client)
	categories := ledger.NewCategories(client)

	// Initialize recognizer based on type
	var recognizer capture.RecognitionClient
	switch *recognizerType {
	case "remote":
		slog.Info("Using backend recognition", "url", *apiURL)
		recognizer = ledger.NewRecognizer(client)
	case "gemini", "ollama":
		scanner, err := newScanner(*recognizerType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel, *recognizeTimeout)
		if err != nil {
			slog.Error("Failed to initialize scanner", "type", *recognizerType, "error", err)
			os.Exit(1)
		}
		defer scanner.Close()
		recognizer = scanning.NewRecognizer(scanner, bills,
			scanning.WithCategories(categories),
			scanning.WithLocation(loc),
		)
	default:
		slog.Error("Invalid recognizer type", "type", *recognizerType, "valid", "remote, gemini or ollama")
		os.Exit(1)
	}

	slog.Info("Initializing database...", "path", *dbPath)
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	engine := capture.NewEngine(recognizer, bills, receipt.NewPreferences(db),
		capture.WithCategoryResolver(categories),
		capture.WithLocation(loc),
	)
	service := receipt.NewService(engine, db, store)
	if err := service.PruneUploads(); err != nil {
		slog.Warn("Failed to prune stale uploads", "error", err)
	}

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(service, basicAuth)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(ctx)
	}()

	addr := fmt.Sprintf(":%d", *port)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		stop()
		<-engineDone
		os.Exit(1)
	}

	slog.Info("Shutting down...")
	if err := <-engineDone; err != nil {
		slog.Error("Engine error", "error", err)
	}
}

func newScanner(kind, geminiKey, geminiModel, ollamaURL, ollamaModel string, timeout time.Duration) (scanning.Scanner, error) {
	switch kind {
	case "gemini":
		apiKey := geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", geminiModel)
		return scanning.NewGemini(apiKey, geminiModel, timeout)
	default:
		slog.Info("Initializing Ollama scanner...", "url", ollamaURL, "model", ollamaModel)
		return scanning.NewOllama(ollamaURL, ollamaModel, timeout)
	}
}

func setupLogger(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
