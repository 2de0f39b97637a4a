package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/meridianrisk/exposure-engine/internal/control"
	"github.com/meridianrisk/exposure-engine/internal/logging"
)

// Service exposes the control plane's REST API and participates in
// worker.Manager's lifecycle, grounded on internal/app/httpapi.Service.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logging.Logger
}

// NewService wires the router (auth middleware + CORS + /metrics) around
// the given Application.
func NewService(app *control.Application, addr string, validator TokenValidator, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewTest()
	}
	mux := newRouter(app, log)
	var handler http.Handler = mux
	handler = wrapWithAuth(handler, validator)
	handler = wrapWithCORS(handler)
	return &Service{addr: addr, handler: handler, log: log}
}

func (s *Service) Name() string { return "http" }

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Warn("http server stopped")
		}
	}()
	s.log.WithContext(ctx)
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func wrapWithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newRouter(app *control.Application, log *logging.Logger) *http.ServeMux {
	h := &handler{app: app, log: log}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.health)

	mux.HandleFunc("/uploads", h.uploads)
	mux.HandleFunc("/uploads/", h.uploadResources)
	mux.HandleFunc("/hazard-datasets", h.hazardDatasets)
	mux.HandleFunc("/hazard-datasets/", h.hazardDatasetResources)
	mux.HandleFunc("/overlay", h.triggerOverlay)
	mux.HandleFunc("/resilience-score", h.scoreResilience)
	mux.HandleFunc("/resilience-score-batch", h.scoreResilienceBatch)
	mux.HandleFunc("/rollup-configs", h.rollupConfigs)
	mux.HandleFunc("/rollup-configs/", h.rollupConfigResources)
	mux.HandleFunc("/breach-eval", h.runBreachEval)
	mux.HandleFunc("/drift", h.triggerDrift)
	mux.HandleFunc("/runs/", h.runResources)
	mux.HandleFunc("/property-profile/resolve", h.resolvePropertyProfile)
	mux.HandleFunc("/lineage/", h.lineage)
	return mux
}

// health reports liveness plus a snapshot of host resource pressure, so an
// operator can tell "the process answers" apart from "the box is starved".
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if vm, err := mem.VirtualMemory(); err == nil {
		body["memory_used_percent"] = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		body["cpu_used_percent"] = pct[0]
	}
	writeJSON(w, http.StatusOK, body)
}
