package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/hknews/internal/news"
)

const localFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>香港電台 本地新聞</title>
  <link>https://news.rthk.hk/rthk/ch/latest-news.htm</link>
  <item>
    <title>立法會通過預算案</title>
    <link>https://news.rthk.hk/1</link>
    <description><![CDATA[<p>立法會<b>今日</b>通過</p>]]></description>
    <pubDate>Mon, 10 Mar 2025 11:00:00 +0800</pubDate>
    <enclosure url="https://img.rthk.hk/1.jpg" type="image/jpeg" length="1"/>
  </item>
  <item>
    <title>天文台發出雷暴警告</title>
    <link>https://news.rthk.hk/2</link>
  </item>
</channel>
</rss>`

func feedServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchMapsItems(t *testing.T) {
	srv := feedServer(t, localFeed, http.StatusOK)
	s := New(map[string][]string{"local": {srv.URL}}, time.Second)

	p, err := s.Fetch(context.Background(), news.QueryFor(news.KindLocal, "hk"))
	require.NoError(t, err)
	require.Len(t, p.Articles, 2)

	a := p.Articles[0]
	assert.Equal(t, "立法會通過預算案", a.Title)
	assert.Equal(t, "立法會今日通過", a.Description)
	assert.Equal(t, "https://news.rthk.hk/1", a.Link)
	assert.Equal(t, "2025-03-10 03:00:00", a.PubDate)
	assert.Equal(t, "https://img.rthk.hk/1.jpg", a.ImageURL)
	assert.Equal(t, "news.rthk.hk", a.SourceID)
	assert.Equal(t, "香港電台 本地新聞", a.SourceName)

	assert.Equal(t, "", p.Articles[1].PubDate)
	assert.Empty(t, p.NextCursor)
}

func TestFeedsForQuery(t *testing.T) {
	s := New(map[string][]string{
		"finance":    {"https://f"},
		"country:jp": {"https://jp"},
	}, time.Second)

	assert.True(t, s.Has(news.QueryFor(news.KindFinance, "hk")), "business maps to finance")
	assert.True(t, s.Has(news.RegionQuery("JP")))
	assert.False(t, s.Has(news.RegionQuery("us")))
	assert.False(t, s.Has(news.QueryFor(news.KindWorld, "hk")))
	assert.False(t, s.Has(news.Query{Category: "business", Cursor: "p2"}))

	_, err := s.Fetch(context.Background(), news.QueryFor(news.KindWorld, "hk"))
	assert.ErrorIs(t, err, ErrNoFeeds)
}

func TestFetchSkipsBrokenFeeds(t *testing.T) {
	good := feedServer(t, localFeed, http.StatusOK)
	bad := feedServer(t, "not xml", http.StatusOK)
	s := New(map[string][]string{"world": {bad.URL, good.URL}}, time.Second)

	p, err := s.Fetch(context.Background(), news.QueryFor(news.KindWorld, "hk"))
	require.NoError(t, err)
	assert.Len(t, p.Articles, 2)
}

func TestFetchAllFail(t *testing.T) {
	bad := feedServer(t, "gone", http.StatusInternalServerError)
	s := New(map[string][]string{"world": {bad.URL}}, time.Second)

	_, err := s.Fetch(context.Background(), news.QueryFor(news.KindWorld, "hk"))
	assert.ErrorIs(t, err, ErrNoItems)
}
