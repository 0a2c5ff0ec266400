package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/api"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/classifier"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/config"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/database"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/ingest"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/jobs"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/ledger"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/logger"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/repository"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/storage"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/writer"
)

type app struct {
	db         *sql.DB
	ingest     *ingest.Service
	ledger     *ledger.Ledger
	classifier *classifier.Classifier
}

type importOptions struct {
	request ingest.Request
	csv     bool
	output  string
	header  bool
}

func main() {
	serveFlag := flag.Bool("serve", false, "Run the HTTP API instead of importing files")
	bankFlag := flag.String("bank", "", "Bank layout hint, e.g. maybank, cimb, hsbc (auto-detected if omitted)")
	customerFlag := flag.String("customer", "", "Customer id the statements belong to (required for imports)")
	accountFlag := flag.String("account", "", "Declared account or card number (read from the statement if omitted)")
	periodFlag := flag.String("period", "", "Declared statement month YYYY-MM (read from the statement if omitted)")
	holderFlag := flag.String("holder", "owner", "Card holder: owner or gz")
	bankNameFlag := flag.String("bank-name", "", "Bank name as declared by the uploader")
	csvFlag := flag.Bool("csv", false, "Write the classified transactions of each active statement to CSV")
	outputFlag := flag.String("output", "", "Output CSV file path (defaults to input filename with .csv extension)")
	headerFlag := flag.Bool("header", true, "Include statement metadata header rows in CSV")
	workersFlag := flag.Int("workers", 0, "Concurrent imports (defaults to WORKERS)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Credit Pilot statement ingestion

Imports credit card and bank statements, detects the bank layout,
validates the extraction, classifies every transaction between the owner
and GZ and allocates payments against GZ advance transfers.

Usage:
  creditpilot [flags] <statement.pdf> [statement2.pdf ...]
  creditpilot --serve

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Import a statement and export its classified transactions
  creditpilot --customer=cust-1 --csv statement.pdf

  # Declare the account and period, force the layout
  creditpilot --customer=cust-1 --account=9012 --period=2025-01 --bank=maybank jan.pdf

  # Serve the API on PORT
  creditpilot --serve

Environment:
  PORT, LOG_LEVEL, DATABASE_DRIVER (sqlite|postgres), DATABASE_URL,
  STORAGE_DIR, WORKERS, MAX_UPLOAD_SIZE_BYTES, UPLOAD_RATE_INTERVAL,
  UPLOAD_RATE_BURST, SUPPLIERS, SUPPLIER_CACHE_TTL, ALLOCATION_RETRIES
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("creditpilot v%s\n", api.Version)
		os.Exit(0)
	}
	if *helpFlag || (!*serveFlag && flag.NArg() == 0) {
		flag.Usage()
		os.Exit(0)
	}

	boot := logger.New("info")
	cfg := config.Load(boot)
	log := logger.New(cfg.LogLevel)

	a, err := build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveFlag {
		if err := serve(ctx, a, cfg, log); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
		return
	}

	if strings.TrimSpace(*customerFlag) == "" {
		fatalf("--customer is required when importing files\n")
	}
	workers := *workersFlag
	if workers < 1 {
		workers = cfg.Workers
	}
	opts := importOptions{
		request: ingest.Request{
			BankHint:      *bankFlag,
			CustomerID:    *customerFlag,
			AccountNumber: *accountFlag,
			Period:        *periodFlag,
			Holder:        models.Holder(strings.ToLower(*holderFlag)),
			BankName:      *bankNameFlag,
		},
		csv:    *csvFlag,
		output: *outputFlag,
		header: *headerFlag,
	}
	if failed := importFiles(ctx, a, flag.Args(), workers, opts, log); failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d file(s) failed\n", failed, flag.NArg())
		os.Exit(1)
	}
}

func build(cfg *config.AppConfig, log zerolog.Logger) (*app, error) {
	db, err := database.OpenMigrated(cfg.DatabaseDriver, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	blobs, err := storage.NewFileStore(cfg.StorageDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	store := repository.NewSQLStore(db, cfg.DatabaseDriver)
	l := ledger.New(store, log, cfg.AllocationRetries)
	cls := classifier.New(store, l, cfg.SupplierCacheTTL, log)
	if len(cfg.Suppliers) > 0 {
		if err := cls.AddSuppliers(context.Background(), cfg.Suppliers...); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed suppliers: %w", err)
		}
	}

	return &app{
		db:         db,
		ingest:     ingest.New(store, blobs, cls, log),
		ledger:     l,
		classifier: cls,
	}, nil
}

func serve(ctx context.Context, a *app, cfg *config.AppConfig, log zerolog.Logger) error {
	server := fiber.New(fiber.Config{
		BodyLimit:             int(cfg.MaxUploadSizeBytes),
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
	})
	h := &api.Handler{
		Ingest:        a.ingest,
		Ledger:        a.ledger,
		Classifier:    a.classifier,
		Log:           log,
		UploadLimiter: rate.NewLimiter(rate.Every(cfg.UploadInterval), cfg.UploadBurst),
	}
	h.RegisterRoutes(server)

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("driver", cfg.DatabaseDriver).Msg("listening")
	return server.Listen(":" + cfg.Port)
}

// importFiles runs each file through the ingestion pipeline on the job
// queue and returns how many did not end in a successful state.
func importFiles(ctx context.Context, a *app, paths []string, workers int, opts importOptions, log zerolog.Logger) int {
	queue := jobs.NewQueue(len(paths), log)
	queue.Start(ctx, workers, func(ctx context.Context, job *jobs.Job) error {
		return processFile(ctx, a, job.Name, opts)
	})

	ids := make([]string, 0, len(paths))
	failed := 0
	for _, p := range paths {
		job := &jobs.Job{Name: p}
		if err := queue.Publish(ctx, job); err != nil {
			fmt.Fprintf(os.Stderr, "Error queueing %s: %v\n", p, err)
			failed++
			continue
		}
		ids = append(ids, job.ID)
	}
	queue.Close()

	for _, id := range ids {
		job, ok := queue.Get(id)
		if !ok {
			failed++
			continue
		}
		if job.Status != jobs.StatusCompleted {
			fmt.Fprintf(os.Stderr, "Error processing %s: %s\n", job.Name, job.Error)
			failed++
		}
	}
	return failed
}

func processFile(ctx context.Context, a *app, path string, opts importOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	req := opts.request
	req.Data = data
	req.Filename = filepath.Base(path)
	resp, err := a.ingest.Import(ctx, req)
	if err != nil {
		return err
	}

	// one write per file so concurrent imports do not interleave
	var out strings.Builder
	fmt.Fprintf(&out, "%s: %s", path, resp.Status)
	if resp.Bank != "" {
		fmt.Fprintf(&out, " [%s]", resp.Bank)
	}
	if resp.Reason != "" {
		fmt.Fprintf(&out, " (%s)", resp.Reason)
	}
	fmt.Fprintf(&out, "\n  document %s, %d transaction(s), %d matched to advance transfers\n",
		resp.DocumentID, resp.Imported, resp.Matched)
	for _, w := range resp.Warnings {
		fmt.Fprintf(&out, "  warning: %s\n", w)
	}
	defer func() { fmt.Print(out.String()) }()

	if !resp.Success {
		return fmt.Errorf("statement %s: %s", resp.Status, resp.Reason)
	}

	if !opts.csv || resp.Status != models.StatusActive {
		return nil
	}
	doc, err := a.ingest.Document(ctx, resp.DocumentID)
	if err != nil {
		return err
	}
	txns, err := a.ingest.Transactions(ctx, resp.DocumentID)
	if err != nil {
		return err
	}
	outPath := opts.output
	if outPath == "" {
		outPath = strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
	}
	w := &writer.CSVWriter{IncludeHeader: opts.header}
	if err := w.WriteToFile(outPath, doc, txns); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	fmt.Fprintf(&out, "  output: %s\n", outPath)
	return nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
