package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/subcheck/internal/domain"
	apimw "github.com/hamed0406/subcheck/internal/httpapi/middleware"
	"github.com/hamed0406/subcheck/internal/repo"
	"github.com/hamed0406/subcheck/internal/scan"
)

const maxBodyBytes = 4 << 20

// Scans is the part of *scan.Manager the API drives.
type Scans interface {
	Start(ctx context.Context, req scan.StartRequest) (*domain.Scan, error)
	Stop(ctx context.Context, id domain.ScanID) error
	Get(ctx context.Context, id domain.ScanID) (*domain.Scan, error)
	List(ctx context.Context) ([]*domain.Scan, error)
}

type Server struct {
	Logger *zap.Logger
	Scans  Scans
}

func NewServer(l *zap.Logger, scans Scans) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Scans: scans}
}

// Router mounts the API. allowedOrigins empty means any origin; rpm <= 0
// disables that limiter.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/scans", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst))
			r.Use(apimw.RequireAny(keys))
			r.Get("/", s.handleListScans)
			r.Get("/{id}", s.handleGetScan)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst))
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/", s.handleStartScan)
			r.Post("/{id}/stop", s.handleStopScan)
		})
	})

	return r
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req scan.StartRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if req.Concurrency < 0 {
		writeError(w, http.StatusBadRequest, "concurrency must be >= 0")
		return
	}

	sc, err := s.Scans.Start(r.Context(), req)
	switch {
	case errors.Is(err, scan.ErrNoHostnames):
		writeError(w, http.StatusBadRequest, "no valid hostnames")
		return
	case err != nil:
		s.Logger.Error("scan_start_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start scan")
		return
	}

	s.Logger.Info("scan_created",
		zap.String("scan_id", string(sc.ID)),
		zap.Int("hosts", len(sc.Hostnames)),
		zap.String("request_id", chimw.GetReqID(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, sc)
}

// scanListItem leaves out per-host data.
type scanListItem struct {
	ID         domain.ScanID     `json:"id"`
	Domain     string            `json:"domain,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Running    bool              `json:"running"`
	Progress   domain.Progress   `json:"progress"`
	Completion domain.Completion `json:"completion,omitempty"`
	Summary    *domain.Summary   `json:"summary,omitempty"`
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.Scans.List(r.Context())
	if err != nil {
		s.Logger.Error("scan_list_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	out := make([]scanListItem, 0, len(scans))
	for _, sc := range scans {
		item := scanListItem{
			ID:         sc.ID,
			Domain:     sc.Domain,
			CreatedAt:  sc.CreatedAt,
			FinishedAt: sc.FinishedAt,
			Running:    sc.Running(),
			Progress:   sc.Progress,
		}
		if sc.Outcome != nil {
			item.Completion = sc.Outcome.Completion
			item.Summary = sc.Summary
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

type scanDetail struct {
	*domain.Scan
	Running    bool               `json:"running"`
	Summary    *domain.Summary    `json:"summary,omitempty"`
	Categories *domain.Categories `json:"categories,omitempty"`
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	sc, err := s.Scans.Get(r.Context(), domain.ScanID(chi.URLParam(r, "id")))
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "scan not found")
		return
	case err != nil:
		s.Logger.Error("scan_get_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get error")
		return
	}

	d := scanDetail{Scan: sc, Running: sc.Running()}
	if sc.Outcome != nil {
		sum := sc.Outcome.Summary()
		d.Summary = &sum
	}
	if sc.Domain != "" {
		c := domain.Categorize(sc.Hostnames, sc.Domain)
		d.Categories = &c
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	id := domain.ScanID(chi.URLParam(r, "id"))
	err := s.Scans.Stop(r.Context(), id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "scan not found")
	case errors.Is(err, scan.ErrNotRunning):
		writeError(w, http.StatusConflict, "scan not running")
	case err != nil:
		s.Logger.Error("scan_stop_error", zap.String("scan_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stop error")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"id": string(id), "status": "stopping"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
