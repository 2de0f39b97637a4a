// Command worker runs the exposure pipeline's background dispatcher without
// an HTTP surface: it polls every run_type's queue and executes the
// matching handler until signalled to stop. Deploy alongside apiserver so
// runs created over HTTP actually get processed, or scale it out
// independently of the API tier.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/meridianrisk/exposure-engine/internal/config"
	"github.com/meridianrisk/exposure-engine/internal/control"
	"github.com/meridianrisk/exposure-engine/internal/logging"
	"github.com/meridianrisk/exposure-engine/internal/objectstore"
	"github.com/meridianrisk/exposure-engine/internal/platform/database"
	"github.com/meridianrisk/exposure-engine/internal/store"
	"github.com/meridianrisk/exposure-engine/internal/store/memory"
	"github.com/meridianrisk/exposure-engine/internal/store/postgres"
)

func main() {
	loadDotEnv()

	dsn := flag.String("dsn", "", "PostgreSQL DSN (in-memory storage when empty)")
	migrate := flag.Bool("migrate", true, "run embedded migrations on startup (ignored for in-memory)")
	objectRoot := flag.String("object-root", "", "filesystem object store root (in-memory store when empty)")
	codeVersion := flag.String("code-version", "dev", "code_version recorded on every processed run")
	pollInterval := flag.Duration("poll-interval", 5*time.Second, "how often each run_type's queue is polled")
	pollSize := flag.Int("poll-size", 50, "max queued runs fetched per run_type per poll")
	fixturesPath := flag.String("config", "", "optional YAML fixtures file seeding rollup configs/threshold rules/policy packs on startup")
	flag.Parse()

	log_ := logging.NewFromEnv("worker")
	rootCtx := context.Background()

	stores, db := resolveStores(rootCtx, *dsn, *migrate, log_)
	if db != nil {
		defer db.Close()
	}
	seedFixtures(rootCtx, *fixturesPath, stores)

	objects := resolveObjectStore(*objectRoot)

	app, err := control.New(stores, log_,
		control.WithObjectStore(objects),
		control.WithCodeVersion(*codeVersion),
		control.WithDispatchInterval(*pollInterval, *pollSize),
	)
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}

	if err := app.Start(rootCtx); err != nil {
		log.Fatalf("start application: %v", err)
	}
	log.Println("worker dispatching runs")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

// loadDotEnv populates the process environment from a ".env" file in the
// working directory when present; it's optional so flags still work the
// same in containers that inject environment variables directly.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: could not load .env: %v", err)
	}
}

// seedFixtures loads and applies an optional -config YAML file; see
// cmd/apiserver's copy of this helper for the fail-fast rationale.
func seedFixtures(ctx context.Context, path string, stores store.Stores) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	fixtures, err := config.LoadFixtures(path)
	if err != nil {
		log.Fatalf("load fixtures: %v", err)
	}
	if err := config.Seed(ctx, stores, fixtures); err != nil {
		log.Fatalf("seed fixtures: %v", err)
	}
}

func resolveStores(ctx context.Context, dsn string, runMigrations bool, log_ *logging.Logger) (store.Stores, *sql.DB) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		log_.WithFields(map[string]any{"backend": "memory"}).Info("using in-memory stores")
		return memory.New(), nil
	}
	db, err := database.Open(ctx, dsn)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	if runMigrations {
		if err := postgres.ApplyMigrations(db); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}
	return postgres.New(db), db
}

func resolveObjectStore(root string) objectstore.Client {
	root = strings.TrimSpace(root)
	if root == "" {
		return objectstore.NewMemoryClient()
	}
	return objectstore.NewFilesystemClient(root)
}
