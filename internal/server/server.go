// Package server is the HTTP relay in front of the board: the aggregated
// news snapshot, a same-origin image proxy, and health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/hknews/internal/display"
	"github.com/deusflow/hknews/internal/feed"
	"github.com/deusflow/hknews/internal/logger"
	"github.com/deusflow/hknews/internal/metrics"
	"github.com/deusflow/hknews/internal/news"
)

const (
	proxyPath      = "/proxy-image"
	proxyUserAgent = "Mozilla/5.0"
	maxImageBytes  = 10 << 20
)

// Board is the read side of the display.
type Board interface {
	Snapshot() display.Snapshot
}

// LoadMoreFunc fetches the next page of kind into the board.
type LoadMoreFunc func(ctx context.Context, kind news.Kind) feed.Result

// StatsFunc returns extra sections for /metrics, keyed by section name.
type StatsFunc func(ctx context.Context) map[string]interface{}

type Server struct {
	httpServer  *http.Server
	board       Board
	loadMore    LoadMoreFunc
	stats       StatsFunc
	nextRefresh func() time.Time
	imageClient *http.Client
}

type Config struct {
	Addr  string
	Board Board
	// LoadMore enables POST /news/{kind}/more when set.
	LoadMore LoadMoreFunc
	Stats    StatsFunc
	// NextRefresh reports when the next scheduled refresh runs; shown on
	// /health when non-zero.
	NextRefresh func() time.Time
	ImageClient *http.Client
}

func New(cfg Config) *Server {
	s := &Server{
		board:       cfg.Board,
		loadMore:    cfg.LoadMore,
		stats:       cfg.Stats,
		nextRefresh: cfg.NextRefresh,
		imageClient: cfg.ImageClient,
	}
	if s.imageClient == nil {
		s.imageClient = &http.Client{Timeout: 15 * time.Second}
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /news", s.handleNews)
	mux.HandleFunc("POST /news/{kind}/more", s.handleLoadMore)
	mux.HandleFunc("GET "+proxyPath, s.handleProxyImage)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return s.withLogging(s.withCORS(mux))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	snap := s.board.Snapshot().Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, proxied(snap))
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	if s.loadMore == nil {
		writeError(w, http.StatusNotFound, "load more is not enabled")
		return
	}
	kind, ok := news.ParseKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown feed")
		return
	}

	res := s.loadMore(r.Context(), kind)
	if errors.Is(res.Err, feed.ErrLoadMoreUnsupported) {
		writeError(w, http.StatusBadRequest, res.Err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcome":  res.Outcome,
		"articles": len(res.Articles),
		"message":  res.Message,
	})
}

// ProxyURL rewrites an absolute image URL to go through the relay.
func ProxyURL(raw string) string {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return raw
	}
	return proxyPath + "?url=" + url.QueryEscape(raw)
}

func proxyCards(cards []display.Card) []display.Card {
	out := make([]display.Card, len(cards))
	for i, c := range cards {
		c.Image = ProxyURL(c.Image)
		out[i] = c
	}
	return out
}

func proxied(snap display.Snapshot) display.Snapshot {
	snap.Headline.Cards = proxyCards(snap.Headline.Cards)
	snap.Local.Cards = proxyCards(snap.Local.Cards)
	snap.World.Cards = proxyCards(snap.World.Cards)
	snap.Finance.Cards = proxyCards(snap.Finance.Cards)
	regional := make([]display.RegionBlock, len(snap.Regional))
	for i, r := range snap.Regional {
		r.Cards = proxyCards(r.Cards)
		regional[i] = r
	}
	snap.Regional = regional
	return snap
}

func (s *Server) handleProxyImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, "Missing image URL", http.StatusBadRequest)
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		http.Error(w, "Invalid image URL", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, "Invalid image URL", http.StatusBadRequest)
		return
	}
	req.Header.Set("User-Agent", proxyUserAgent)

	resp, err := s.imageClient.Do(req)
	if err != nil {
		logger.Warn("image proxy failed", "url", raw, "error", err)
		http.Error(w, "Failed to load image", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("image origin returned error", "url", raw, "status", resp.StatusCode)
		http.Error(w, "Failed to load image", http.StatusBadGateway)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxImageBytes)); err != nil {
		logger.Warn("image proxy copy failed", "url", raw, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	status := "ok"
	code := http.StatusOK
	if !metrics.Global.Healthy() {
		status = "error"
		code = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	}
	if s.nextRefresh != nil {
		if next := s.nextRefresh(); !next.IsZero() {
			body["next_refresh"] = next.Format(time.RFC3339)
		}
	}
	writeJSON(w, code, body)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()
	if s.stats != nil {
		for k, v := range s.stats(r.Context()) {
			stats[k] = v
		}
	}
	writeJSON(w, http.StatusOK, stats)
}
