// Package feed drives each feed through cache check, fetch, fallback and
// render, and fans out over the configured regions.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/hknews/internal/cache"
	"github.com/deusflow/hknews/internal/logger"
	"github.com/deusflow/hknews/internal/metrics"
	"github.com/deusflow/hknews/internal/news"
	"github.com/deusflow/hknews/internal/newsdata"
)

const (
	HeadlineLimit = 1
	RegionLimit   = 3

	defaultGridDensity = 6
	defaultConcurrency = 4

	fallbackScope = "fallback"
)

// User-facing messages, shown in place of articles.
const (
	MsgNoNews       = "無可用新聞，可能原因：無近期數據或API限制，請稍後重試"
	MsgRateLimited  = "News API 請求超限，請稍後重試"
	MsgUnauthorized = "News API 金鑰無效或未獲授權"
	MsgFetchFailed  = "新聞載入失敗，請稍後重試"
)

var reasonMessages = map[news.Reason]string{
	news.ReasonWindow:    "無近期數據",
	news.ReasonLanguage:  "語言不符",
	news.ReasonSource:    "來源不在白名單",
	news.ReasonCategory:  "內容與分類無關",
	news.ReasonMalformed: "資料不完整",
}

type Options struct {
	Upstream Upstream
	// Secondary is tried when Upstream fails or is empty on a first page.
	Secondary   Upstream
	Cache       *cache.Cache
	Pipeline    *news.Pipeline
	Display     Display
	Regions     []Region
	HomeCountry string
	GridDensity int
	// Concurrency bounds the regional fan-out.
	Concurrency int
	Now         func() time.Time
}

// Orchestrator is safe for concurrent use. Its configuration is fixed at
// construction.
type Orchestrator struct {
	upstream    Upstream
	secondary   Upstream
	cache       *cache.Cache
	pipeline    *news.Pipeline
	display     Display
	cursors     *Cursors
	regions     []Region
	home        string
	grid        int
	concurrency int
	now         func() time.Time
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		upstream:    opts.Upstream,
		secondary:   opts.Secondary,
		cache:       opts.Cache,
		pipeline:    opts.Pipeline,
		display:     opts.Display,
		cursors:     NewCursors(),
		regions:     append([]Region(nil), opts.Regions...),
		home:        opts.HomeCountry,
		grid:        opts.GridDensity,
		concurrency: opts.Concurrency,
		now:         opts.Now,
	}
	if o.grid <= 0 {
		o.grid = defaultGridDensity
	}
	if o.concurrency <= 0 {
		o.concurrency = defaultConcurrency
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Regions returns the configured regions in display order.
func (o *Orchestrator) Regions() []Region {
	return append([]Region(nil), o.regions...)
}

// HasMore reports whether load-more has a cursor for kind.
func (o *Orchestrator) HasMore(kind news.Kind) bool {
	return o.cursors.Get(string(kind)) != ""
}

type runIDKey struct{}

// WithRunID tags ctx so every feed in one refresh logs the same run_id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func ensureRunID(ctx context.Context) context.Context {
	if RunID(ctx) != "" {
		return ctx
	}
	return WithRunID(ctx, uuid.NewString())
}

// cycle describes one feed fetch.
type cycle struct {
	kind   news.Kind
	region string
	key    cache.Key
	query  news.Query
	limit  int
	// cursor is the Cursors key; empty for feeds without pagination.
	cursor   string
	appendTo bool
	// fallback is a broader query tried when the fetch is empty and no
	// cache entry exists.
	fallback *cycle
}

func (s cycle) name() string {
	if s.region != "" {
		return string(s.kind) + "/" + s.region
	}
	if s.key.Scope != "" {
		return string(s.kind) + "/" + s.key.Scope
	}
	return string(s.kind)
}

func (o *Orchestrator) categoryCycle(kind news.Kind, appendTo bool) cycle {
	s := cycle{
		kind:     kind,
		key:      cache.Key{Kind: kind},
		query:    news.QueryFor(kind, o.home),
		limit:    o.grid,
		cursor:   string(kind),
		appendTo: appendTo,
	}
	if kind == news.KindHeadline {
		s.limit = HeadlineLimit
		s.cursor = ""
	}
	if kind == news.KindLocal && !appendTo {
		s.fallback = &cycle{
			kind:  kind,
			key:   cache.Key{Kind: kind, Scope: fallbackScope},
			query: news.RegionQuery(o.home),
			limit: o.grid,
		}
	}
	return s
}

func (o *Orchestrator) regionCycle(r Region) cycle {
	return cycle{
		kind:   news.KindRegional,
		region: r.Label,
		key:    cache.Key{Kind: news.KindRegional, Scope: r.Label},
		query:  news.RegionQuery(r.Country),
		limit:  RegionLimit,
		fallback: &cycle{
			kind:   news.KindRegional,
			region: r.Label,
			key:    cache.Key{Kind: news.KindRegional, Scope: r.Label + "_" + fallbackScope},
			query:  news.Query{Keyword: r.Label},
			limit:  RegionLimit,
		},
	}
}

// FetchFeed runs one category feed from its first page.
func (o *Orchestrator) FetchFeed(ctx context.Context, kind news.Kind) Result {
	if kind == news.KindRegional {
		return Result{Kind: kind, Err: fmt.Errorf("regional feeds are fetched with FetchRegional")}
	}
	return o.run(ensureRunID(ctx), o.categoryCycle(kind, false))
}

// LoadMore fetches the next page of a grid feed and appends it. Appended
// pages are not cached.
func (o *Orchestrator) LoadMore(ctx context.Context, kind news.Kind) Result {
	switch kind {
	case news.KindLocal, news.KindWorld, news.KindFinance:
	default:
		return Result{Kind: kind, Outcome: OutcomeNoMore, Empty: true, Err: ErrLoadMoreUnsupported}
	}
	return o.run(ensureRunID(ctx), o.categoryCycle(kind, true))
}

// FetchRegional runs every region's feed concurrently into the regional
// surface. Results are in configured order.
func (o *Orchestrator) FetchRegional(ctx context.Context) []Result {
	ctx = ensureRunID(ctx)
	o.display.Clear(string(news.KindRegional))

	results := make([]Result, len(o.regions))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, r := range o.regions {
		g.Go(func() error {
			results[i] = o.run(ctx, o.regionCycle(r))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Summary is the outcome of a full refresh.
type Summary struct {
	RunID    string
	Results  []Result
	Duration time.Duration
}

// Failures counts feeds that ended on an upstream error.
func (s Summary) Failures() int {
	n := 0
	for _, r := range s.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Refresh runs every category feed and the regional fan-out.
func (o *Orchestrator) Refresh(ctx context.Context) Summary {
	runID := uuid.NewString()
	ctx = WithRunID(ctx, runID)
	start := time.Now()
	logger.Info("refresh started", "run_id", runID)

	kinds := news.CategoryKinds()
	categories := make([]Result, len(kinds))
	var regional []Result

	var g errgroup.Group
	for i, kind := range kinds {
		g.Go(func() error {
			categories[i] = o.FetchFeed(ctx, kind)
			return nil
		})
	}
	g.Go(func() error {
		regional = o.FetchRegional(ctx)
		return nil
	})
	_ = g.Wait()

	summary := Summary{
		RunID:    runID,
		Results:  append(categories, regional...),
		Duration: time.Since(start),
	}

	metrics.Global.RecordProcessingTime(summary.Duration)
	failures := summary.Failures()
	if failures > 0 && failures == len(summary.Results) {
		metrics.Global.SetError(fmt.Sprintf("all %d feeds failed", failures))
	} else {
		metrics.Global.SetLastRun()
	}

	logger.Info("refresh finished", "run_id", runID, "feeds", len(summary.Results),
		"failures", failures, "duration", summary.Duration)
	return summary
}

func (o *Orchestrator) run(ctx context.Context, s cycle) Result {
	log := logger.With("run_id", RunID(ctx), "feed", s.name())
	res := Result{Kind: s.kind, Region: s.region, Trace: []State{StateIdle}}
	pres := Presentation{
		Surface:  string(s.kind),
		Kind:     s.kind,
		Headline: s.kind == news.KindHeadline,
		Append:   s.appendTo,
		Region:   s.region,
	}

	q := s.query
	var stale *cache.Entry
	if s.appendTo {
		q.Cursor = o.cursors.Get(s.cursor)
		if q.Cursor == "" {
			res.Trace = append(res.Trace, StateRendered)
			res.Outcome = OutcomeNoMore
			res.Empty = true
			res.Diagnostic = "no further pages"
			return res
		}
	} else {
		res.Trace = append(res.Trace, StateCacheCheck)
		entry, err := o.cache.Get(ctx, s.key)
		if err != nil {
			log.Warn("cache read failed", "error", err)
		}
		if o.cache.IsFresh(entry) {
			res.Trace = append(res.Trace, StateCacheHit)
			metrics.Global.IncrementCacheHits()
			log.Info("using cached data", "stored_at", entry.StoredAt)
			o.setCursor(s, entry.Data.NextCursor)
			pres.UpdatedAt = entry.StoredAt
			o.present(&res, pres, entry.Data, s.limit)
			res.Outcome = OutcomeCacheHit
			return res
		}
		stale = entry
	}

	res.Trace = append(res.Trace, StateFetching)
	payload, err := o.fetch(ctx, q, log)
	if err == nil {
		res.Trace = append(res.Trace, StateSuccess)
		if !s.appendTo {
			if err := o.cache.Put(ctx, s.key, payload); err != nil {
				log.Warn("cache write failed", "error", err)
			}
		}
		o.setCursor(s, payload.NextCursor)
		pres.UpdatedAt = o.now()
		log.Info("fetched", "articles", len(payload.Articles), "has_next", payload.NextCursor != "")
		o.present(&res, pres, payload, s.limit)
		res.Outcome = OutcomeFetched
		return res
	}

	state, diagnostic, message := classify(err)
	res.Trace = append(res.Trace, state)
	res.Diagnostic = diagnostic
	log.Warn("fetch yielded no articles", "state", state, "error", err)

	if stale != nil {
		metrics.Global.IncrementStaleFallbacks()
		log.Info("using expired cached data", "stored_at", stale.StoredAt)
		pres.Stale = true
		pres.UpdatedAt = stale.StoredAt
		res.Diagnostic = diagnostic + ", serving expired cache"
		res.Err = err
		o.present(&res, pres, stale.Data, s.limit)
		res.Outcome = OutcomeStale
		return res
	}

	if state == StateEmptyFallback && s.fallback != nil {
		log.Info("falling back to broader query", "fallback", s.fallback.name())
		fb := o.run(ctx, *s.fallback)
		fb.Trace = append(res.Trace, fb.Trace...)
		return fb
	}

	metrics.Global.IncrementEmptyResults()
	res.Trace = append(res.Trace, StateRendered)
	res.Outcome = OutcomeEmpty
	res.Empty = true
	res.Message = message
	res.Err = fmt.Errorf("%w: %w", ErrNoFallback, err)
	o.display.RenderEmpty(pres, message)
	return res
}

// fetch asks the primary upstream, then the secondary for first pages when
// the primary fails. The primary's error is kept for classification.
func (o *Orchestrator) fetch(ctx context.Context, q news.Query, log *slog.Logger) (news.Payload, error) {
	payload, err := o.upstream.Fetch(ctx, q)
	if err == nil && len(payload.Articles) == 0 {
		err = &newsdata.Error{Kind: newsdata.ErrEmptyResult}
	}
	if err == nil || o.secondary == nil || q.Cursor != "" {
		return payload, err
	}
	if c, ok := o.secondary.(Coverage); ok && !c.Has(q) {
		return payload, err
	}

	alt, altErr := o.secondary.Fetch(ctx, q)
	if altErr != nil || len(alt.Articles) == 0 {
		return news.Payload{}, err
	}
	log.Info("primary upstream unavailable, using secondary", "articles", len(alt.Articles))
	return alt, nil
}

// classify maps a fetch error to its fallback state, an operator diagnostic
// and the message shown to users.
func classify(err error) (State, string, string) {
	switch {
	case errors.Is(err, newsdata.ErrEmptyResult):
		return StateEmptyFallback, "no recent data", MsgNoNews
	case errors.Is(err, newsdata.ErrMalformedResponse):
		return StateEmptyFallback, "malformed upstream response", MsgNoNews
	case errors.Is(err, newsdata.ErrRateLimited):
		return StateErrorFallback, "upstream rate limited", MsgRateLimited
	case errors.Is(err, newsdata.ErrUnauthorized):
		return StateErrorFallback, "upstream rejected the API key", MsgUnauthorized
	default:
		return StateErrorFallback, "upstream request failed", MsgFetchFailed
	}
}

func (o *Orchestrator) setCursor(s cycle, token string) {
	if s.cursor != "" {
		o.cursors.Set(s.cursor, token)
	}
}

// present filters payload and hands the survivors to the display. Filtering
// runs on every read so heuristic changes apply to cached payloads too.
func (o *Orchestrator) present(res *Result, pres Presentation, payload news.Payload, limit int) {
	report := o.pipeline.Filter(payload.Articles, pres.Kind, limit)
	metrics.Global.AddFiltered(len(report.Accepted), report.Input-len(report.Accepted))
	res.Trace = append(res.Trace, StateRendered)

	if report.Empty() {
		res.Empty = true
		if res.Diagnostic != "" {
			res.Diagnostic += "; " + report.Diagnostic()
		} else {
			res.Diagnostic = report.Diagnostic()
		}
		res.Message = emptyMessage(report)
		o.display.RenderEmpty(pres, res.Message)
		return
	}
	res.Articles = report.Accepted
	o.display.Render(pres, report.Accepted)
}

// emptyMessage names the likely cause of an empty filter result.
func emptyMessage(r news.Report) string {
	reason, n := r.DominantReason()
	if r.Input == 0 || n == 0 {
		return MsgNoNews
	}
	return "無可用新聞，可能原因：" + reasonMessages[reason]
}
