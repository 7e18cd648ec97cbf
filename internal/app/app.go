// Package app wires configuration into the running relay: storage, cache,
// upstreams, orchestrator, board and the optional Telegram push.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/hknews/internal/cache"
	"github.com/deusflow/hknews/internal/config"
	"github.com/deusflow/hknews/internal/dedup"
	"github.com/deusflow/hknews/internal/display"
	"github.com/deusflow/hknews/internal/feed"
	"github.com/deusflow/hknews/internal/logger"
	"github.com/deusflow/hknews/internal/news"
	"github.com/deusflow/hknews/internal/newsdata"
	"github.com/deusflow/hknews/internal/ratelimit"
	"github.com/deusflow/hknews/internal/retry"
	"github.com/deusflow/hknews/internal/rss"
	"github.com/deusflow/hknews/internal/scheduler"
	"github.com/deusflow/hknews/internal/server"
	"github.com/deusflow/hknews/internal/sources"
	"github.com/deusflow/hknews/internal/storage"
	"github.com/deusflow/hknews/internal/telegram"
)

const (
	warmUpJob = "warm-up"
	timezone  = "Asia/Hong_Kong"
)

// RSS feeds cover only configured kinds and countries.
var _ feed.Coverage = (*rss.Source)(nil)

type App struct {
	cfg      *config.Config
	store    storage.Store
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	telegram *telegram.Client

	Board *display.Board
	Feeds *feed.Orchestrator
}

// Option customises the graph, mostly for tests.
type Option func(*options)

type options struct {
	telegramBaseURL string
}

// WithTelegramBaseURL points the Telegram client at another Bot API host.
func WithTelegramBaseURL(u string) Option {
	return func(o *options) { o.telegramBaseURL = u }
}

// New builds the application from cfg. Close releases the store.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := storage.Open(ctx, cfg.StoreBackend, cfg.StorePath, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	registry := sources.New(cfg.Sources.ValidSources, cfg.Sources.Logos, cfg.Sources.LogoPreferred)

	regions := make([]feed.Region, 0, len(cfg.Sources.Regions))
	labels := make([]string, 0, len(cfg.Sources.Regions))
	for _, r := range cfg.Sources.Regions {
		regions = append(regions, feed.Region{Label: r.Label, Country: r.Country})
		labels = append(labels, r.Label)
	}

	board := display.New(registry, dedup.New(store), labels)
	if err := board.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("loading seen titles: %w", err)
	}

	limiter := ratelimit.New(cfg.UpstreamRPS, cfg.DailyQuota)
	upstream := newsdata.New(cfg.NewsAPIBaseURL, cfg.NewsAPIKey, cfg.Language, cfg.RequestTimeout,
		newsdata.WithLimiter(limiter),
		newsdata.WithRetry(retry.RetryConfig{Retries: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true}),
	)

	var secondary feed.Upstream
	if len(cfg.Sources.RSSFeeds) > 0 {
		secondary = rss.New(cfg.Sources.RSSFeeds, cfg.RequestTimeout)
	}

	pipeline := &news.Pipeline{
		Window:     cfg.FreshnessWindow,
		Mode:       cfg.FilterMode,
		Classifier: news.NewClassifier(news.DefaultTraditional, news.DefaultSimplified, cfg.EnglishMinLength),
		Sources:    registry,
	}

	feedCache := cache.New(store, cfg.CacheTTL, cfg.CacheMode)
	a := &App{
		cfg:     cfg,
		store:   store,
		cache:   feedCache,
		limiter: limiter,
		Board:   board,
		Feeds: feed.New(feed.Options{
			Upstream:    upstream,
			Secondary:   secondary,
			Cache:       feedCache,
			Pipeline:    pipeline,
			Display:     board,
			Regions:     regions,
			HomeCountry: cfg.HomeCountry,
			GridDensity: cfg.GridDensity,
		}),
	}

	if cfg.TelegramToken != "" {
		var tgOpts []telegram.Option
		if o.telegramBaseURL != "" {
			tgOpts = append(tgOpts, telegram.WithBaseURL(o.telegramBaseURL))
		}
		a.telegram = telegram.New(cfg.TelegramToken, cfg.TelegramChatID, tgOpts...)
	}

	logger.Info("app initialised",
		"store", cfg.StoreBackend,
		"filter_mode", cfg.FilterMode,
		"cache_mode", cfg.CacheMode,
		"regions", len(regions),
		"rss_secondary", secondary != nil,
		"telegram", a.telegram != nil,
	)
	return a, nil
}

// Refresh runs every feed, persists seen titles and pushes the digest when
// Telegram is configured. Per-feed failures are in the summary; the error
// covers persistence and push only.
func (a *App) Refresh(ctx context.Context) (feed.Summary, error) {
	summary := a.Feeds.Refresh(ctx)

	// the digest reads Seen flags, so push before they are persisted
	var pushErr error
	if a.telegram != nil {
		err := a.telegram.PushDigest(ctx, a.Board.Snapshot())
		switch {
		case errors.Is(err, telegram.ErrNothingToSend):
			logger.Info("no new headlines for telegram", "run_id", summary.RunID)
		case err != nil:
			pushErr = fmt.Errorf("telegram push: %w", err)
		}
	}

	err := errors.Join(a.Board.Flush(ctx), pushErr)
	logger.Info("upstream budget", "run_id", summary.RunID, "stats", a.limiter.GetStats())
	return summary, err
}

// LoadMore appends the next page of kind to the board.
func (a *App) LoadMore(ctx context.Context, kind news.Kind) feed.Result {
	res := a.Feeds.LoadMore(ctx, kind)
	if err := a.Board.Flush(ctx); err != nil {
		logger.Warn("failed to persist seen titles", "error", err)
	}
	return res
}

// Serve refreshes once, then serves the relay and refreshes on the
// configured schedule until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	sched, err := scheduler.New(ctx, timezone, 5*time.Minute)
	if err != nil {
		return err
	}
	warmUp := func(ctx context.Context) error {
		_, err := a.Refresh(ctx)
		return err
	}
	if err := sched.AddJob(warmUpJob, a.cfg.RefreshSchedule, warmUp); err != nil {
		return err
	}
	if err := sched.RunNow(warmUpJob, warmUp); err != nil {
		logger.Warn("initial refresh incomplete", "error", err)
	}

	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	srv := server.New(server.Config{
		Addr:     a.cfg.HTTPAddr,
		Board:    a.Board,
		LoadMore: a.LoadMore,
		Stats:    a.Stats,
		NextRefresh: func() time.Time {
			for _, job := range sched.ListJobs() {
				if job.Name == warmUpJob {
					return job.NextRun
				}
			}
			return time.Time{}
		},
	})
	return srv.Start(ctx)
}

// Stats reports store contents and the upstream budget for /metrics.
func (a *App) Stats(ctx context.Context) map[string]interface{} {
	out := map[string]interface{}{"upstream": a.limiter.GetStats()}
	store, err := storage.GetStats(ctx, a.store, cache.KeyPrefix, dedup.KeyPrefix)
	if err != nil {
		logger.Warn("failed to count store items", "error", err)
		return out
	}
	out["store"] = store
	return out
}

// Purge removes cache entries that no longer decode.
func (a *App) Purge(ctx context.Context) (int, error) {
	return a.cache.Purge(ctx)
}

func (a *App) Close() error {
	return a.store.Close()
}
