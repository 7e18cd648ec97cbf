package feed

import (
	"context"
	"errors"
	"time"

	"github.com/deusflow/hknews/internal/news"
)

// State is a step of one feed's fetch cycle. A Result carries the states it
// passed through, ending in StateRendered.
type State string

const (
	StateIdle          State = "idle"
	StateCacheCheck    State = "cache-check"
	StateCacheHit      State = "cache-hit"
	StateFetching      State = "fetching"
	StateSuccess       State = "success"
	StateEmptyFallback State = "empty-fallback"
	StateErrorFallback State = "error-fallback"
	StateRendered      State = "rendered"
)

// Outcome summarises where a feed's content came from.
type Outcome string

const (
	// OutcomeCacheHit served a fresh cache entry without calling upstream.
	OutcomeCacheHit Outcome = "cache-hit"
	// OutcomeFetched served a new upstream payload.
	OutcomeFetched Outcome = "fetched"
	// OutcomeStale served an expired cache entry after a failed or empty fetch.
	OutcomeStale Outcome = "stale"
	// OutcomeEmpty had nothing to serve.
	OutcomeEmpty Outcome = "empty"
	// OutcomeNoMore means load-more had no cursor to continue from.
	OutcomeNoMore Outcome = "no-more"
)

// ErrNoFallback marks the terminal empty state: the fetch failed or came back
// empty and no cache entry existed.
var ErrNoFallback = errors.New("no fallback available")

// ErrLoadMoreUnsupported is returned for feeds without pagination.
var ErrLoadMoreUnsupported = errors.New("load more not supported for this feed")

// Upstream is an article source.
type Upstream interface {
	Fetch(ctx context.Context, q news.Query) (news.Payload, error)
}

// Coverage is implemented by upstreams that serve only some queries. The
// secondary is skipped for queries it does not cover.
type Coverage interface {
	Has(q news.Query) bool
}

// Region is one regional feed.
type Region struct {
	Label   string
	Country string
}

// Presentation tells the display where and how to show a result.
type Presentation struct {
	Surface  string
	Kind     news.Kind
	Headline bool
	Append   bool
	Region   string
	// Stale is set when the articles come from an expired cache entry.
	Stale bool
	// UpdatedAt is when the shown payload was fetched from upstream.
	UpdatedAt time.Time
}

// Display consumes filtered results. Implementations must be safe for
// concurrent use: regions render in parallel.
type Display interface {
	Render(p Presentation, articles []news.ScoredArticle)
	RenderEmpty(p Presentation, message string)
	Clear(surface string)
}

// Result is the outcome of one feed cycle.
type Result struct {
	Kind     news.Kind
	Region   string
	Outcome  Outcome
	Trace    []State
	Articles []news.ScoredArticle
	// Empty is set when nothing was rendered, whatever the outcome.
	Empty bool
	// Diagnostic explains an empty or degraded result for operators.
	Diagnostic string
	// Message is the user-facing text shown instead of articles, if any.
	Message string
	Err     error
}

// Name is the feed's log name.
func (r Result) Name() string {
	if r.Region != "" {
		return string(r.Kind) + "/" + r.Region
	}
	return string(r.Kind)
}

// Failed reports whether the feed had to fall back after an upstream error.
func (r Result) Failed() bool {
	for _, s := range r.Trace {
		if s == StateErrorFallback {
			return true
		}
	}
	return false
}
