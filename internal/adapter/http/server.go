package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/weather-feature-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/weather-feature-etl/internal/domain"
)

// Archive is the read side of the feature archive.
type Archive interface {
	Inventory(ctx context.Context) (sqlite.Inventory, error)
	LatestBatch(ctx context.Context) (domain.FeatureBatch, error)
}

// Server exposes health, readiness, metrics and archive HTTP endpoints.
type Server struct {
	httpServer *http.Server
	archive    Archive
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz and /metrics
// routes. When archive is not nil, /archive/inventory and
// /archive/latest are served as well.
func NewServer(addr string, ready sharedobs.ReadinessChecker, archive Archive, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		archive: archive,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if archive != nil {
		mux.HandleFunc("GET /archive/inventory", s.handleInventory)
		mux.HandleFunc("GET /archive/latest", s.handleLatest)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type inventoryResponse struct {
	RawBlobs      int            `json:"raw_blobs"`
	RawBySource   map[string]int `json:"raw_by_source"`
	Features      int            `json:"features"`
	Runs          int            `json:"runs"`
	FirstObserved *string        `json:"first_observed"`
	LastObserved  *string        `json:"last_observed"`
}

type batchResponse struct {
	RunID       string                 `json:"run_id"`
	Tick        string                 `json:"tick"`
	ProcessedAt time.Time              `json:"processed_at"`
	Records     []domain.FeatureRecord `json:"records"`
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := s.archive.Inventory(r.Context())
	if err != nil {
		s.logger.Error("archive inventory failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "inventory unavailable"})
		return
	}

	resp := inventoryResponse{
		RawBlobs:    inv.RawBlobs,
		RawBySource: make(map[string]int, len(inv.RawBySource)),
		Features:    inv.Features,
		Runs:        inv.Runs,
	}
	for source, n := range inv.RawBySource {
		resp.RawBySource[string(source)] = n
	}
	if !inv.FirstObserved.IsZero() {
		first, last := domain.CanonicalTimestamp(inv.FirstObserved), domain.CanonicalTimestamp(inv.LastObserved)
		resp.FirstObserved, resp.LastObserved = &first, &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	batch, err := s.archive.LatestBatch(r.Context())
	if errors.Is(err, sqlite.ErrNoBatches) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("archive latest batch failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "latest batch unavailable"})
		return
	}

	records := batch.Records
	if records == nil {
		records = []domain.FeatureRecord{}
	}
	writeJSON(w, http.StatusOK, batchResponse{
		RunID:       batch.RunID,
		Tick:        domain.CanonicalTimestamp(batch.Tick),
		ProcessedAt: batch.ProcessedAt,
		Records:     records,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
