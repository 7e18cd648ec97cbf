// Package rss is a secondary upstream: RSS and Atom feeds mapped to articles
// so a feed still has content when the primary API is limited or empty.
package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/hknews/internal/logger"
	"github.com/deusflow/hknews/internal/news"
)

// ErrNoFeeds means no feed is configured for the query.
var ErrNoFeeds = errors.New("no rss feeds configured")

// ErrNoItems means every configured feed failed or was empty.
var ErrNoItems = errors.New("rss feeds returned no items")

const pubDateLayout = "2006-01-02 15:04:05"

// Source resolves queries to feed URLs. Feeds are keyed by feed kind
// ("local", "finance") or by "country:<code>" for regions.
type Source struct {
	feeds  map[string][]string
	parser *gofeed.Parser
}

func New(feeds map[string][]string, timeout time.Duration) *Source {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	return &Source{feeds: feeds, parser: parser}
}

// feedsFor picks the feeds for q. Pagination is not supported, so a query
// with a cursor never matches.
func (s *Source) feedsFor(q news.Query) []string {
	if q.Cursor != "" || len(s.feeds) == 0 {
		return nil
	}
	if q.Category != "" {
		if urls := s.feeds[q.Category]; len(urls) > 0 {
			return urls
		}
		if kind, ok := news.ParseKind(q.Category); ok {
			if urls := s.feeds[string(kind)]; len(urls) > 0 {
				return urls
			}
		}
		return nil
	}
	if q.Country != "" {
		return s.feeds["country:"+strings.ToLower(q.Country)]
	}
	return nil
}

// Has reports whether q has feeds configured.
func (s *Source) Has(q news.Query) bool {
	return len(s.feedsFor(q)) > 0
}

// Fetch downloads and parses all feeds for q. A failing feed is logged and
// skipped; only when every feed fails or is empty does Fetch return an error.
func (s *Source) Fetch(ctx context.Context, q news.Query) (news.Payload, error) {
	urls := s.feedsFor(q)
	if len(urls) == 0 {
		return news.Payload{}, ErrNoFeeds
	}

	var articles []news.Article
	successCount := 0
	var lastErr error

	for _, u := range urls {
		feed, err := s.parser.ParseURLWithContext(u, ctx)
		if err != nil {
			logger.Warn("error parsing rss feed", "url", u, "error", err)
			lastErr = err
			continue
		}
		successCount++
		items := mapItems(feed, u)
		logger.Debug("loaded rss feed", "url", u, "items", len(items))
		articles = append(articles, items...)
	}

	logger.Debug("processed rss feeds", "ok", successCount, "total", len(urls))
	if len(articles) == 0 {
		if lastErr != nil {
			return news.Payload{}, fmt.Errorf("%w: %v", ErrNoItems, lastErr)
		}
		return news.Payload{}, ErrNoItems
	}
	return news.Payload{Articles: articles}, nil
}

func mapItems(feed *gofeed.Feed, feedURL string) []news.Article {
	sourceID := hostOf(feed.Link)
	if sourceID == "" {
		sourceID = hostOf(feedURL)
	}

	out := make([]news.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		a := news.Article{
			Title:       item.Title,
			Description: item.Description,
			Link:        item.Link,
			ImageURL:    imageOf(item),
			SourceID:    sourceID,
			SourceName:  feed.Title,
		}
		if a.Description == "" {
			a.Description = item.Content
		}
		if item.PublishedParsed != nil {
			a.PubDate = item.PublishedParsed.UTC().Format(pubDateLayout)
		} else if item.UpdatedParsed != nil {
			a.PubDate = item.UpdatedParsed.UTC().Format(pubDateLayout)
		}
		a.Clean()
		out = append(out, a)
	}
	return out
}

func imageOf(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

// hostOf returns the host without a leading "www.", used as the source id so
// whitelist substring matching works ("rthk.hk" contains "rthk").
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
