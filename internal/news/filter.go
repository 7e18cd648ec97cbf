package news

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deusflow/hknews/internal/logger"
)

// Mode selects how strictly the pipeline enforces source and language checks.
type Mode string

const (
	// ModeStrict enforces the source whitelist and rejects titles that are
	// neither Traditional Chinese nor English.
	ModeStrict Mode = "strict"
	// ModePermissive enforces the whitelist and only annotates language.
	ModePermissive Mode = "permissive"
	// ModeWhitelistOff accepts every source and only annotates language.
	ModeWhitelistOff Mode = "whitelist-off"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStrict, ModePermissive, ModeWhitelistOff:
		return m, nil
	case "":
		return ModePermissive, nil
	default:
		return "", fmt.Errorf("unknown filter mode %q", s)
	}
}

func (m Mode) enforcesWhitelist() bool { return m != ModeWhitelistOff }
func (m Mode) enforcesLanguage() bool  { return m == ModeStrict }

// SourcePolicy decides whether a source identifier is whitelisted.
type SourcePolicy interface {
	IsAccepted(sourceID string) bool
}

// Reason names the step that rejected an article.
type Reason string

const (
	ReasonMalformed Reason = "malformed"
	ReasonWindow    Reason = "time window"
	ReasonCategory  Reason = "category"
	ReasonSource    Reason = "source"
	ReasonLanguage  Reason = "language"
)

// reasonOrder breaks ties when picking the dominant rejection cause.
var reasonOrder = []Reason{ReasonWindow, ReasonLanguage, ReasonSource, ReasonCategory, ReasonMalformed}

// Pipeline turns a raw feed into ranked, accepted articles. Steps run in a
// fixed order and each one is a hard reject; date and language parsing fail
// open while source and category checks fail closed.
type Pipeline struct {
	Window     time.Duration
	Mode       Mode
	Classifier *Classifier
	Sources    SourcePolicy
	Now        func() time.Time
}

// Report is the outcome of one filter pass.
type Report struct {
	Input        int
	Accepted     []ScoredArticle
	Rejected     map[Reason]int
	DateWarnings int
}

// Empty reports whether nothing survived filtering.
func (r Report) Empty() bool {
	return len(r.Accepted) == 0
}

// DominantReason returns the most frequent rejection reason and its count.
// It returns ("", 0) when nothing was rejected.
func (r Report) DominantReason() (Reason, int) {
	var top Reason
	topCount := 0
	for _, reason := range reasonOrder {
		if n := r.Rejected[reason]; n > topCount {
			top, topCount = reason, n
		}
	}
	return top, topCount
}

// Diagnostic explains an empty result in terms an operator can act on.
func (r Report) Diagnostic() string {
	if r.Input == 0 {
		return "no recent data"
	}
	top, topCount := r.DominantReason()
	cause := "unknown"
	switch top {
	case ReasonWindow:
		cause = "stale data outside the freshness window"
	case ReasonLanguage:
		cause = "language mismatch"
	case ReasonSource:
		cause = "source mismatch with the whitelist"
	case ReasonCategory:
		cause = "off-topic for the category"
	case ReasonMalformed:
		cause = "articles missing title or link"
	}
	return fmt.Sprintf("all %d articles rejected, mostly %s (%d)", r.Input, cause, topCount)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) classifier() *Classifier {
	if p.Classifier != nil {
		return p.Classifier
	}
	return DefaultClassifier()
}

// Filter runs every step over articles, ranks survivors by descending score
// (stable on ties) and truncates to limit when limit > 0.
func (p *Pipeline) Filter(articles []Article, kind Kind, limit int) Report {
	report := Report{
		Input:    len(articles),
		Rejected: make(map[Reason]int),
	}
	now := p.now()
	cls := p.classifier()

	reject := func(a Article, reason Reason) {
		report.Rejected[reason]++
		logger.Debug("article filtered out", "feed", kind, "title", a.Title, "reason", reason)
	}

	for _, a := range articles {
		if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.Link) == "" {
			logger.Warn("article missing title or link", "feed", kind, "link", a.Link, "title", a.Title)
			reject(a, ReasonMalformed)
			continue
		}

		ok, warn := IsWithinWindow(a.PubDate, p.Window, now)
		if warn != nil {
			report.DateWarnings++
			logger.Warn("pubDate check failed open", "feed", kind, "title", a.Title, "pubDate", a.PubDate, "warning", warn)
		}
		if !ok {
			reject(a, ReasonWindow)
			continue
		}

		if !IsRelevant(a, kind) {
			reject(a, ReasonCategory)
			continue
		}

		if p.Mode.enforcesWhitelist() && p.Sources != nil && !p.Sources.IsAccepted(a.Source()) {
			reject(a, ReasonSource)
			continue
		}

		scored := cls.Score(a)
		if p.Mode.enforcesLanguage() && scored.TradScore == 0 && scored.EngScore == 0 {
			reject(a, ReasonLanguage)
			continue
		}

		report.Accepted = append(report.Accepted, scored)
	}

	sort.SliceStable(report.Accepted, func(i, j int) bool {
		return report.Accepted[i].Rank() > report.Accepted[j].Rank()
	})
	if limit > 0 && len(report.Accepted) > limit {
		report.Accepted = report.Accepted[:limit]
	}

	logger.Debug("filter pass complete", "feed", kind, "input", report.Input, "accepted", len(report.Accepted))
	return report
}

// Articles strips scores, for callers that only need the accepted items.
func (r Report) Articles() []Article {
	out := make([]Article, len(r.Accepted))
	for i, s := range r.Accepted {
		out[i] = s.Article
	}
	return out
}
