// Package server is the HTTP JSON binding of the aggregation API. It maps
// request shapes onto the aggregator, resolver, and sync manager, and maps
// grpc status codes onto HTTP status codes at the edge.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/aggregator"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/manager"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/provider"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/repository"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/resolver"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

// Server exposes the aggregation API over HTTP.
type Server struct {
	aggregator *aggregator.Aggregator
	resolver   *resolver.Resolver
	syncMgr    *manager.SyncManager
	repo       repository.Repository
	logger     zerolog.Logger

	healthTimeout time.Duration
}

func New(agg *aggregator.Aggregator, res *resolver.Resolver, syncMgr *manager.SyncManager, repo repository.Repository, logger zerolog.Logger) *Server {
	return &Server{
		aggregator:    agg,
		resolver:      res,
		syncMgr:       syncMgr,
		repo:          repo,
		logger:        logger,
		healthTimeout: 5 * time.Second,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/providers", s.handleProviders)
	mux.HandleFunc("POST /v1/sync", s.handleStartSync)
	mux.HandleFunc("GET /v1/sync", s.handleSyncStatus)
	mux.HandleFunc("GET /v1/assets", s.handleAssets)
	mux.HandleFunc("GET /v1/volumes", s.handleVolumes)
	mux.HandleFunc("POST /v1/rates", s.handleRates)
	mux.HandleFunc("POST /v1/liquidity", s.handleLiquidity)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/live", s.handleLive)
	mux.HandleFunc("GET /health/ready", s.handleHealth)
	return mux
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": provider.All()})
}

type syncRequest struct {
	Domains []string `json:"domains,omitempty"`
}

func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.syncMgr.StartSync(r.Context(), req.Domains)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.syncMgr.Status(r.Context(), r.URL.Query().Get("domain"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	ids, err := parseProviders(r.URL.Query().Get("providers"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.aggregator.ListedAssets(r.Context(), ids))
}

// providerVolumes is one provider's bucketed and cumulative series.
type providerVolumes struct {
	Daily      []types.VolumeWindow         `json:"daily"`
	Buckets    []types.VolumeBucket         `json:"buckets"`
	Cumulative aggregator.CumulativeVolumes `json:"cumulative"`
}

func (s *Server) handleVolumes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids, err := parseProviders(q.Get("providers"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	window, err := parseDateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	granularity := aggregator.Granularity(q.Get("granularity"))
	if granularity == "" {
		granularity = aggregator.GranularityDaily
	}
	switch granularity {
	case aggregator.GranularityDaily, aggregator.GranularityWeekly, aggregator.GranularityMonthly:
	default:
		s.writeError(w, r, status.Errorf(codes.InvalidArgument, "unknown granularity: %q", granularity))
		return
	}

	result := s.aggregator.Volumes(r.Context(), window, ids)
	now := time.Now().UTC()

	data := make(map[provider.ID]providerVolumes, len(result.Providers))
	for id, windows := range result.Data {
		data[id] = providerVolumes{
			Daily:      windows,
			Buckets:    aggregator.BucketVolumes(windows, granularity),
			Cumulative: aggregator.Cumulative(windows, now),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": result.Providers,
		"data":      data,
	})
}

// routeRequest names both legs by canonical asset id.
type routeRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

type ratesRequest struct {
	Routes    []routeRequest `json:"routes"`
	Notionals []string       `json:"notionals"`
	Providers []string       `json:"providers,omitempty"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	var req ratesRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ids, err := parseProviderList(req.Providers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	routes, err := s.resolveRoutes(r.Context(), req.Routes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.aggregator.Rates(r.Context(), routes, req.Notionals, ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type liquidityRequest struct {
	Routes    []routeRequest `json:"routes"`
	Providers []string       `json:"providers,omitempty"`
}

func (s *Server) handleLiquidity(w http.ResponseWriter, r *http.Request) {
	var req liquidityRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ids, err := parseProviderList(req.Providers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	routes, err := s.resolveRoutes(r.Context(), req.Routes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.aggregator.Liquidity(r.Context(), routes, ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.healthTimeout)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Health check failed: store unhealthy")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"component": "store",
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"components": map[string]string{"store": "ok"},
	})
}

// resolveRoutes enriches both legs of every requested route.
func (s *Server) resolveRoutes(ctx context.Context, reqs []routeRequest) ([]types.Route, error) {
	routes := make([]types.Route, 0, len(reqs))
	for _, rr := range reqs {
		src, err := s.resolver.FromCanonicalID(ctx, rr.Source)
		if err != nil {
			return nil, err
		}
		dst, err := s.resolver.FromCanonicalID(ctx, rr.Destination)
		if err != nil {
			return nil, err
		}
		routes = append(routes, types.Route{Source: src, Destination: dst})
	}
	return routes, nil
}

func decodeBody(r *http.Request, into any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

func parseProviders(raw string) ([]provider.ID, error) {
	if raw == "" {
		return nil, nil
	}
	return parseProviderList(strings.Split(raw, ","))
}

func parseProviderList(raw []string) ([]provider.ID, error) {
	ids := make([]provider.ID, 0, len(raw))
	for _, s := range raw {
		id, err := provider.Parse(s)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseDateRange(from, to string) (types.DateRange, error) {
	var window types.DateRange
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return window, status.Errorf(codes.InvalidArgument, "invalid from date: %q", from)
		}
		window.From = t
	}
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return window, status.Errorf(codes.InvalidArgument, "invalid to date: %q", to)
		}
		window.To = t
	}
	if !window.From.IsZero() && !window.To.IsZero() && window.To.Before(window.From) {
		return window, status.Error(codes.InvalidArgument, "to precedes from")
	}
	return window, nil
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the grpc code taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, repository.ErrNotFound) {
			st = status.New(codes.NotFound, err.Error())
		} else {
			st = status.New(codes.Internal, err.Error())
		}
	}

	httpCode := httpStatusFor(st.Code())
	if httpCode >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, httpCode, map[string]string{
		"error": st.Message(),
		"code":  st.Code().String(),
	})
}

func httpStatusFor(code codes.Code) int {
	switch code {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ListenAndServe runs the handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
