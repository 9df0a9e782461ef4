package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/docscan/internal/document"
	"github.com/zombor/docscan/internal/ledger"
	"github.com/zombor/docscan/internal/ocr"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("docscan")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "docscan.db", "Database file path")
		storageBackend = fs.StringLong("storage-backend", "local", "Source file storage: 'local' or 'minio'")
		storagePath    = fs.StringLong("storage", "./documents", "Local storage directory path")
		minioEndpoint  = fs.StringLong("minio-endpoint", "localhost:9000", "MinIO/S3 endpoint (host:port)")
		minioAccessKey = fs.StringLong("minio-access-key", "", "MinIO/S3 access key")
		minioSecretKey = fs.StringLong("minio-secret-key", "", "MinIO/S3 secret key")
		minioBucket    = fs.StringLong("minio-bucket", "docscan", "MinIO/S3 bucket name")
		minioRegion    = fs.StringLong("minio-region", "", "MinIO/S3 region (default us-east-1)")
		minioSSL       = fs.BoolLong("minio-ssl", "Use TLS for MinIO/S3")
		engineType     = fs.StringLong("engine", "tesseract", "OCR engine: 'tesseract', 'gemini' or 'ollama'")
		ocrLanguages   = fs.StringLong("ocr-languages", "eng+tha", "Tesseract languages joined with '+'")
		enhance        = fs.BoolLong("enhance", "Grayscale, contrast and sharpen images before OCR")
		ocrTimeout     = fs.DurationLong("ocr-timeout", 0, "Per-run OCR timeout (0 waits for the engine indefinitely)")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "qwen2-vl", "Ollama vision model name")
		ledgerURL      = fs.StringLong("ledger-url", "", "Accounting ledger API base URL (optional)")
		ledgerToken    = fs.StringLong("ledger-token", "", "Accounting ledger bearer token")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat      = fs.StringLong("log-format", "text", "Log format: text or json")
		_              = fs.StringLong("config", "", "Config file (flag-name value per line)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("DOCSCAN"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	initLogger(*logLevel, *logFormat)
	ctx := context.Background()

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := document.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize OCR engine based on type
	var engine ocr.Engine
	switch *engineType {
	case "tesseract":
		slog.Info("Initializing Tesseract engine...", "languages", *ocrLanguages)
		engine = ocr.NewTesseract(strings.Split(*ocrLanguages, "+")...)
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini engine...", "model", *geminiModel)
		engine, err = ocr.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama engine...", "url", *ollamaURL, "model", *ollamaModel)
		engine, err = ocr.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid engine type", "type", *engineType, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	if *enhance {
		engine = ocr.NewEnhancing(engine)
	}
	engine = ocr.WithTimeout(ocr.NewPaged(engine, ocr.FitzRenderer{}), *ocrTimeout)
	defer engine.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "backend", *storageBackend)
	var store document.Storage
	switch *storageBackend {
	case "local":
		store, err = document.NewLocalStorage(*storagePath)
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
	case "minio":
		minioStore, err := document.NewMinioStorage(document.MinioConfig{
			Endpoint:  *minioEndpoint,
			AccessKey: *minioAccessKey,
			SecretKey: *minioSecretKey,
			Bucket:    *minioBucket,
			Region:    *minioRegion,
			UseSSL:    *minioSSL,
		})
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Error("Failed to prepare bucket", "bucket", *minioBucket, "error", err)
			os.Exit(1)
		}
		store = minioStore
	default:
		slog.Error("Invalid storage backend", "backend", *storageBackend, "valid", "local or minio")
		os.Exit(1)
	}

	// Ledger is optional; bill creation answers 503 without it
	var ledgerClient ledger.Client
	if *ledgerURL != "" {
		client, err := ledger.NewHTTPClient(*ledgerURL, *ledgerToken)
		if err != nil {
			slog.Error("Failed to initialize ledger client", "error", err)
			os.Exit(1)
		}
		ledgerClient = client
	}

	documentService := document.NewService(db, store, engine, ledgerClient)

	recovered, err := documentService.Pipeline().RecoverInterrupted()
	if err != nil {
		slog.Error("Failed to recover interrupted runs", "error", err)
		os.Exit(1)
	}
	if recovered > 0 {
		slog.Warn("Marked interrupted runs as failed", "count", recovered)
	}

	// Initialize server
	basicAuth := document.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := document.NewServer(documentService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// initLogger installs the default slog logger
func initLogger(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
