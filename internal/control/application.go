// Package control is the composition root: it wires every pipeline
// component (C1-C16) against a concrete store.Stores and objectstore.Client,
// registers a Handler per run_type with the worker dispatcher, and exposes
// Start/Stop lifecycle management, generalizing internal/app/application.go's
// Stores/Option/Application pattern from the teacher's per-domain service
// set to this module's Run-centric pipeline.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianrisk/exposure-engine/internal/logging"
	"github.com/meridianrisk/exposure-engine/internal/objectstore"
	"github.com/meridianrisk/exposure-engine/internal/providers"
	"github.com/meridianrisk/exposure-engine/internal/runs"
	"github.com/meridianrisk/exposure-engine/internal/store"
	"github.com/meridianrisk/exposure-engine/internal/worker"
)

// Option customizes the application runtime, mirroring
// internal/app/application.go's functional-option builder.
type Option func(*builderConfig)

type builderConfig struct {
	objects         objectstore.Client
	geocoder        providers.Geocoder
	parcel          providers.ParcelProvider
	characteristics providers.CharacteristicsProvider
	codeVersion     string
	pollInterval    time.Duration
	pollSize        int
}

// WithObjectStore overrides the default in-memory object store backend.
func WithObjectStore(c objectstore.Client) Option {
	return func(b *builderConfig) { b.objects = c }
}

// WithProviders overrides the default stub geocode/parcel/characteristics
// providers with real upstream-backed implementations.
func WithProviders(g providers.Geocoder, p providers.ParcelProvider, c providers.CharacteristicsProvider) Option {
	return func(b *builderConfig) {
		if g != nil {
			b.geocoder = g
		}
		if p != nil {
			b.parcel = p
		}
		if c != nil {
			b.characteristics = c
		}
	}
}

// WithCodeVersion sets the value frozen onto every Run's code_version field.
func WithCodeVersion(v string) Option {
	return func(b *builderConfig) { b.codeVersion = v }
}

// WithDispatchInterval overrides the dispatcher's poll interval and queued
// runs fetched per run_type per tick.
func WithDispatchInterval(interval time.Duration, pollSize int) Option {
	return func(b *builderConfig) {
		b.interval(interval)
		b.pollSize = pollSize
	}
}

func (b *builderConfig) interval(d time.Duration) { b.pollInterval = d }

func resolveConfig(opts ...Option) builderConfig {
	cfg := builderConfig{
		objects:         objectstore.NewMemoryClient(),
		geocoder:        providers.StubGeocoder{},
		parcel:          providers.StubParcelProvider{},
		characteristics: providers.StubCharacteristicsProvider{},
		codeVersion:     "dev",
		pollInterval:    5 * time.Second,
		pollSize:        50,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Application ties the run registry, dispatcher, stores, object store, and
// enrichment providers together and manages their lifecycle.
type Application struct {
	Stores          store.Stores
	Objects         objectstore.Client
	Geocoder        providers.Geocoder
	Parcel          providers.ParcelProvider
	Characteristics providers.CharacteristicsProvider
	Runs            *runs.Registry

	dispatcher *worker.Dispatcher
	manager    *worker.Manager
	log        *logging.Logger
}

// New builds a fully wired Application: a Registry over stores, a Dispatcher
// with every run_type handler registered, and a Manager that will start and
// stop the dispatcher.
func New(stores store.Stores, log *logging.Logger, opts ...Option) (*Application, error) {
	if stores == nil {
		return nil, fmt.Errorf("control: stores is required")
	}
	if log == nil {
		log = logging.NewTest()
	}
	cfg := resolveConfig(opts...)

	registry := runs.New(stores, log, cfg.codeVersion)
	dispatcher := worker.NewDispatcher(registry, log, cfg.pollInterval, cfg.pollSize)

	app := &Application{
		Stores:          stores,
		Objects:         cfg.objects,
		Geocoder:        cfg.geocoder,
		Parcel:          cfg.parcel,
		Characteristics: cfg.characteristics,
		Runs:            registry,
		dispatcher:      dispatcher,
		log:             log,
	}
	app.registerHandlers()

	manager := worker.NewManager()
	if err := manager.Register(dispatcher); err != nil {
		return nil, err
	}
	app.manager = manager

	return app, nil
}

// Attach registers an additional lifecycle-managed service (e.g. an HTTP
// server) alongside the dispatcher. Call before Start.
func (a *Application) Attach(svc worker.Service) error {
	return a.manager.Register(svc)
}

// Start begins the dispatcher (and any attached services).
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops the dispatcher (and any attached services) in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
