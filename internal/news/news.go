package news

import (
	"regexp"
	"strings"
)

// Kind identifies a feed family. Each kind maps to one upstream query shape
// and one display surface.
type Kind string

const (
	KindHeadline Kind = "headline"
	KindLocal    Kind = "local"
	KindWorld    Kind = "world"
	KindFinance  Kind = "finance"
	KindRegional Kind = "regional"
)

// CategoryKinds lists the category feeds in display order.
func CategoryKinds() []Kind {
	return []Kind{KindHeadline, KindLocal, KindWorld, KindFinance}
}

// ParseKind maps a user supplied name to a Kind. "business" is accepted as an
// alias for finance because that is the upstream category name.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "headline", "top", "":
		return KindHeadline, true
	case "local":
		return KindLocal, true
	case "world":
		return KindWorld, true
	case "finance", "business":
		return KindFinance, true
	case "regional", "region":
		return KindRegional, true
	}
	return "", false
}

// Article is one item as received from an upstream source. Only Title and
// Link are required; everything else may be empty.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link"`
	PubDate     string `json:"pubDate,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	SourceID    string `json:"source_id,omitempty"`
	SourceName  string `json:"source_name,omitempty"`
}

// Source returns the best available source identifier.
func (a Article) Source() string {
	if a.SourceID != "" {
		return a.SourceID
	}
	return a.SourceName
}

// Text is the title and description joined, used by keyword checks.
func (a Article) Text() string {
	return a.Title + " " + a.Description
}

// ScoredArticle is an accepted article with its language scores. It is
// recomputed on every filter pass and never persisted.
type ScoredArticle struct {
	Article   Article `json:"article"`
	TradScore float64 `json:"tradScore"`
	EngScore  float64 `json:"engScore"`
}

// Rank is the sort key: traditional-script score plus one for English.
func (s ScoredArticle) Rank() float64 {
	return s.TradScore + s.EngScore
}

// Payload is what a single upstream fetch yields and what the cache stores.
type Payload struct {
	Articles   []Article `json:"results"`
	NextCursor string    `json:"nextPage,omitempty"`
}

// containsAny distinguishes phrases and short words so "ai" does not match "said".
// CJK keywords have no word boundaries and always use substring matching.
func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)

	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}

		if strings.Contains(k, " ") || !isASCII(k) {
			if strings.Contains(text, k) {
				return true
			}
			continue
		}

		// Short tokens (<=3) -> whole word match
		if len(k) <= 3 {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
			if re.MatchString(text) {
				return true
			}
			continue
		}

		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
