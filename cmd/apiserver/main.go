// Command apiserver runs the exposure pipeline's control-plane REST API:
// upload intake, validation/commit/overlay/rollup/breach/drift triggers,
// resilience scoring, and run inspection, backed by worker.Dispatcher for
// the actual pipeline execution.
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
	"github.com/meridianrisk/exposure-engine/internal/domain"
	"github.com/meridianrisk/exposure-engine/internal/httpapi"
	"github.com/meridianrisk/exposure-engine/internal/logging"
	"github.com/meridianrisk/exposure-engine/internal/objectstore"
	"github.com/meridianrisk/exposure-engine/internal/platform/database"
	"github.com/meridianrisk/exposure-engine/internal/store"
	"github.com/meridianrisk/exposure-engine/internal/store/memory"
	"github.com/meridianrisk/exposure-engine/internal/store/postgres"
)

func main() {
	loadDotEnv()

	addr := flag.String("addr", ":8080", "HTTP listen address")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (in-memory storage when empty)")
	migrate := flag.Bool("migrate", true, "run embedded migrations on startup (ignored for in-memory)")
	objectRoot := flag.String("object-root", "", "filesystem object store root (in-memory store when empty)")
	jwtSecret := flag.String("jwt-secret", "", "HS256 shared secret for bearer tokens (static dev tokens used when empty)")
	codeVersion := flag.String("code-version", "dev", "code_version recorded on every created run")
	fixturesPath := flag.String("config", "", "optional YAML fixtures file seeding rollup configs/threshold rules/policy packs on startup")
	flag.Parse()

	log_ := logging.NewFromEnv("apiserver")
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
	)
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}

	validator := resolveValidator(*jwtSecret)
	svc := httpapi.NewService(app, *addr, validator, log_)
	if err := app.Attach(svc); err != nil {
		log.Fatalf("attach http service: %v", err)
	}

	if err := app.Start(rootCtx); err != nil {
		log.Fatalf("start application: %v", err)
	}
	log.Printf("apiserver listening on %s", *addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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

// seedFixtures loads and applies an optional -config YAML file; it's a
// local/dev convenience, so a missing path is a silent no-op and an
// unreadable or invalid one is fatal (better to fail fast than start
// serving traffic against half-applied fixtures).
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

func resolveValidator(secret string) httpapi.TokenValidator {
	secret = strings.TrimSpace(secret)
	if secret != "" {
		return httpapi.NewHS256Validator(secret)
	}
	log.Println("WARNING: jwt-secret not set; falling back to static dev tokens (DEV_ADMIN_TOKEN/DEV_ANALYST_TOKEN)")
	return httpapi.NewStaticTokenValidator(devTokens())
}

// devTokens seeds a fixed token set for local development and integration
// tests that don't want to stand up a JWT issuer.
func devTokens() map[string]httpapi.Caller {
	return map[string]httpapi.Caller{
		"DEV_ADMIN_TOKEN":   {TenantID: "dev-tenant", Role: domain.RoleAdmin, UserID: "dev-admin"},
		"DEV_ANALYST_TOKEN": {TenantID: "dev-tenant", Role: domain.RoleAnalyst, UserID: "dev-analyst"},
		"DEV_AUDITOR_TOKEN": {TenantID: "dev-tenant", Role: domain.RoleAuditor, UserID: "dev-auditor"},
	}
}
