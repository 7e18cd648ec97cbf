package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/hknews/internal/display"
	"github.com/deusflow/hknews/internal/feed"
	"github.com/deusflow/hknews/internal/metrics"
	"github.com/deusflow/hknews/internal/news"
)

type staticBoard display.Snapshot

func (b staticBoard) Snapshot() display.Snapshot { return display.Snapshot(b) }

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Board == nil {
		cfg.Board = staticBoard{}
	}
	srv := httptest.NewServer(New(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestNews_RewritesImagesAndSearches(t *testing.T) {
	board := staticBoard{
		Headline: display.Surface{Name: "headline", Cards: []display.Card{{Title: "Top", Image: "https://img.example.com/a.jpg?x=1"}}},
		Local: display.Surface{Name: "local", Cards: []display.Card{
			{Title: "Rain warning", Image: "/static/logo.png"},
			{Title: "Budget"},
		}},
		Regional: []display.RegionBlock{{Label: "日本", Cards: []display.Card{{Title: "Rain in Tokyo", Image: "http://i/j.png"}}}},
	}
	srv := newTestServer(t, Config{Board: board})

	resp, err := http.Get(srv.URL + "/news?q=rain")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap display.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "/proxy-image?url="+url.QueryEscape("https://img.example.com/a.jpg?x=1"), snap.Headline.Cards[0].Image)
	require.Len(t, snap.Local.Cards, 1)
	assert.Equal(t, "/static/logo.png", snap.Local.Cards[0].Image, "relative paths are left alone")
	assert.Equal(t, "/proxy-image?url="+url.QueryEscape("http://i/j.png"), snap.Regional[0].Cards[0].Image)
}

func TestProxyImage(t *testing.T) {
	var gotUA string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("PNGDATA"))
	}))
	defer origin.Close()
	srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/proxy-image?url=" + url.QueryEscape(origin.URL+"/a.png"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "PNGDATA", string(body))
	assert.Equal(t, "Mozilla/5.0", gotUA)

	resp, err = http.Get(srv.URL + "/proxy-image?url=" + url.QueryEscape(origin.URL+"/missing.png"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/proxy-image")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/proxy-image?url=" + url.QueryEscape("file:///etc/passwd"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoadMore(t *testing.T) {
	var got news.Kind
	srv := newTestServer(t, Config{LoadMore: func(ctx context.Context, kind news.Kind) feed.Result {
		got = kind
		if kind == news.KindHeadline {
			return feed.Result{Kind: kind, Err: feed.ErrLoadMoreUnsupported}
		}
		return feed.Result{Kind: kind, Outcome: feed.OutcomeFetched, Articles: make([]news.ScoredArticle, 2)}
	}})

	resp, err := http.Post(srv.URL+"/news/business/more", "application/json", nil)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, news.KindFinance, got)
	assert.Equal(t, "fetched", body["outcome"])
	assert.Equal(t, float64(2), body["articles"])

	resp, err = http.Post(srv.URL+"/news/headline/more", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/news/sports/more", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, Config{})

	metrics.Global.SetError("all 5 feeds failed")
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "all 5 feeds failed", body["last_error"])

	metrics.Global.SetLastRun()
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	var stats map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Contains(t, stats, "upstream_requests")
	assert.Equal(t, true, stats["is_healthy"])
}

func TestMetricsSectionsAndNextRefresh(t *testing.T) {
	next := time.Date(2025, 3, 10, 12, 3, 0, 0, time.UTC)
	srv := newTestServer(t, Config{
		Stats: func(context.Context) map[string]interface{} {
			return map[string]interface{}{"store": map[string]int{"total_items": 7}}
		},
		NextRefresh: func() time.Time { return next },
	})

	metrics.Global.SetLastRun()
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "2025-03-10T12:03:00Z", body["next_refresh"])

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	var stats map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Equal(t, map[string]interface{}{"total_items": float64(7)}, stats["store"])
	assert.Contains(t, stats, "upstream_requests")
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, Config{})
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/news", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
