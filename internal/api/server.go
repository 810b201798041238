package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stakeScope/internal/analytics"
	"stakeScope/internal/model"
	"stakeScope/internal/scheduler"
	"stakeScope/internal/storage"
)

// MaxRangeBlocks bounds the span of a range query.
const MaxRangeBlocks = 100_000

// Options holds the collaborators of the server. Nil members disable the
// routes that need them.
type Options struct {
	Addr       string
	Store      storage.Store
	Analytics  *analytics.Service
	Refresher  *analytics.Refresher
	Schedulers []*scheduler.Scheduler
	Gatherer   prometheus.Gatherer
}

// Server is the HTTP query surface.
type Server struct {
	opts   Options
	logger *zap.Logger
	router *chi.Mux
	server *http.Server
}

func NewServer(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		opts:   opts,
		logger: logger.Named("api"),
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	if opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	s.router.Get("/status", s.handleStatus)
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/deposits/blocks/{block}", s.handleBlockSummary)
		r.Get("/deposits/blocks", s.handleRangeSummary)
		r.Get("/deposits", s.handleDeposits)
		r.Get("/pods", s.handlePods)
	})

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting api server", zap.String("address", s.opts.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping api server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type statusResponse struct {
	Streams []scheduler.Status       `json:"streams"`
	Cursors []model.Cursor           `json:"cursors"`
	Refresh *analytics.RefreshResult `json:"refresh,omitempty"`
	Error   string                   `json:"refresh_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Streams: make([]scheduler.Status, 0, len(s.opts.Schedulers)), Cursors: []model.Cursor{}}
	for _, sched := range s.opts.Schedulers {
		resp.Streams = append(resp.Streams, sched.Status())
	}
	if s.opts.Store != nil {
		cursors, err := s.opts.Store.Cursors(r.Context())
		if err != nil {
			s.internalError(w, "read cursors", err)
			return
		}
		if cursors != nil {
			resp.Cursors = cursors
		}
	}
	if s.opts.Refresher != nil {
		last, err := s.opts.Refresher.Last()
		resp.Refresh = last
		if err != nil {
			resp.Error = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBlockSummary(w http.ResponseWriter, r *http.Request) {
	if s.opts.Analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics not configured")
		return
	}
	block, err := strconv.ParseUint(chi.URLParam(r, "block"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block number")
		return
	}
	row, err := s.opts.Analytics.Block(r.Context(), block)
	if err != nil {
		s.internalError(w, "block summary", err)
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no deposits in block %d", block))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type rangeSummaryResponse struct {
	analytics.RangeSummary
	Rows []model.MaterializedRow `json:"rows"`
}

func (s *Server) handleRangeSummary(w http.ResponseWriter, r *http.Request) {
	if s.opts.Analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics not configured")
		return
	}
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	rows, err := s.opts.Analytics.Range(r.Context(), from, to)
	if err != nil {
		s.internalError(w, "range summary", err)
		return
	}
	total, err := s.opts.Analytics.RangeTotal(r.Context(), from, to)
	if err != nil {
		s.internalError(w, "range total", err)
		return
	}
	writeJSON(w, http.StatusOK, rangeSummaryResponse{RangeSummary: total, Rows: rows})
}

func (s *Server) handleDeposits(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	query := r.URL.Query()
	var (
		events []model.StakedDepositEvent
		err    error
	)
	switch {
	case query.Get("pubkey") != "":
		events, err = s.opts.Store.StakedDepositsByPubkey(r.Context(), strings.TrimSpace(query.Get("pubkey")))
	case query.Get("withdrawal_credentials") != "":
		events, err = s.opts.Store.StakedDepositsByWithdrawalCredentials(r.Context(), strings.TrimSpace(query.Get("withdrawal_credentials")))
	case query.Get("from") != "" || query.Get("to") != "":
		from, to, ok := parseRange(w, r)
		if !ok {
			return
		}
		events, err = s.opts.Store.StakedDepositsInRange(r.Context(), from, to)
	default:
		writeError(w, http.StatusBadRequest, "one of pubkey, withdrawal_credentials or from/to is required")
		return
	}
	if err != nil {
		s.internalError(w, "deposit lookup", err)
		return
	}
	if events == nil {
		events = []model.StakedDepositEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handlePods(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	events, err := s.opts.Store.PodDeployedInRange(r.Context(), from, to)
	if err != nil {
		s.internalError(w, "pod lookup", err)
		return
	}
	if events == nil {
		events = []model.PodDeployedEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func parseRange(w http.ResponseWriter, r *http.Request) (uint64, uint64, bool) {
	query := r.URL.Query()
	from, err := strconv.ParseUint(query.Get("from"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from block")
		return 0, 0, false
	}
	to, err := strconv.ParseUint(query.Get("to"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to block")
		return 0, 0, false
	}
	if from > to {
		writeError(w, http.StatusBadRequest, "from must not be after to")
		return 0, 0, false
	}
	if to-from >= MaxRangeBlocks {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("range exceeds %d blocks", MaxRangeBlocks))
		return 0, 0, false
	}
	return from, to, true
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
