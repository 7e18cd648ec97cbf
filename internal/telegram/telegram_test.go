package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/hknews/internal/display"
	"github.com/deusflow/hknews/internal/retry"
)

type botServer struct {
	mu       sync.Mutex
	paths    []string
	payloads []map[string]interface{}
	statuses []int
}

func (b *botServer) handler(w http.ResponseWriter, r *http.Request) {
	var p map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&p)

	b.mu.Lock()
	b.paths = append(b.paths, r.URL.Path)
	b.payloads = append(b.payloads, p)
	status := http.StatusOK
	if len(b.statuses) > 0 {
		status, b.statuses = b.statuses[0], b.statuses[1:]
	}
	b.mu.Unlock()

	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func newBot(t *testing.T, statuses ...int) (*botServer, *Client) {
	t.Helper()
	b := &botServer{statuses: statuses}
	srv := httptest.NewServer(http.HandlerFunc(b.handler))
	t.Cleanup(srv.Close)
	c := New("TOKEN", "@chat",
		WithBaseURL(srv.URL),
		WithRetry(retry.RetryConfig{Retries: 2, Delay: time.Millisecond}))
	return b, c
}

func TestSendMessage(t *testing.T) {
	b, c := newBot(t)
	require.NoError(t, c.SendMessage(context.Background(), "<b>hi</b>"))

	require.Len(t, b.paths, 1)
	assert.Equal(t, "/botTOKEN/sendMessage", b.paths[0])
	assert.Equal(t, "@chat", b.payloads[0]["chat_id"])
	assert.Equal(t, "HTML", b.payloads[0]["parse_mode"])
	assert.Equal(t, true, b.payloads[0]["disable_web_page_preview"])
}

func TestSendMessage_RetriesServerErrors(t *testing.T) {
	b, c := newBot(t, http.StatusBadGateway, http.StatusTooManyRequests)
	require.NoError(t, c.SendMessage(context.Background(), "x"))
	assert.Len(t, b.paths, 3)
}

func TestSendMessage_ClientErrorIsPermanent(t *testing.T) {
	b, c := newBot(t, http.StatusBadRequest)
	err := c.SendMessage(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Len(t, b.paths, 1)
}

func TestSendPhoto_TruncatesCaption(t *testing.T) {
	b, c := newBot(t)
	long := make([]rune, 1500)
	for i := range long {
		long[i] = '港'
	}
	require.NoError(t, c.SendPhoto(context.Background(), "https://img/x.jpg", string(long)))
	assert.Equal(t, "/botTOKEN/sendPhoto", b.paths[0])
	assert.Len(t, []rune(b.payloads[0]["caption"].(string)), maxCaption)
}

func TestFormatDigest(t *testing.T) {
	snap := display.Snapshot{
		Headline: display.Surface{Cards: []display.Card{{Title: "A & B", Link: "https://h?a=1&b=2", Source: "rthk"}}},
		Local: display.Surface{Cards: []display.Card{
			{Title: "seen before", Link: "https://s", Seen: true},
			{Title: "new one", Link: "https://n"},
		}},
		LastUpdate: "2025/03/10 12:00:00",
	}

	text := FormatDigest(snap)
	assert.Contains(t, text, `<a href="https://h?a=1&amp;b=2">A &amp; B</a> <i>rthk</i>`)
	assert.Contains(t, text, "new one")
	assert.NotContains(t, text, "seen before")
	assert.NotContains(t, text, "國際")
	assert.Contains(t, text, "最後更新: 2025/03/10 12:00:00")

	all := display.Snapshot{Local: display.Surface{Cards: []display.Card{{Title: "x", Seen: true}}}}
	assert.Equal(t, "", FormatDigest(all))
}

func TestPushDigest(t *testing.T) {
	b, c := newBot(t)
	snap := display.Snapshot{
		Headline: display.Surface{Cards: []display.Card{{Title: "Top", Link: "https://h", Image: "https://img/h.jpg"}}},
	}
	require.NoError(t, c.PushDigest(context.Background(), snap))
	assert.Equal(t, []string{"/botTOKEN/sendPhoto", "/botTOKEN/sendMessage"}, b.paths)

	err := c.PushDigest(context.Background(), display.Snapshot{})
	assert.ErrorIs(t, err, ErrNothingToSend)
}
