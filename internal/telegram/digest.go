package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/deusflow/hknews/internal/display"
)

// ErrNothingToSend is returned when the snapshot holds no unseen cards.
var ErrNothingToSend = errors.New("no new headlines to send")

// perSurface caps how many cards of each surface go into one digest.
const perSurface = 3

var sectionTitles = []struct {
	emoji, title string
	pick         func(display.Snapshot) display.Surface
}{
	{"📰", "頭條", func(s display.Snapshot) display.Surface { return s.Headline }},
	{"🏙", "本地", func(s display.Snapshot) display.Surface { return s.Local }},
	{"🌏", "國際", func(s display.Snapshot) display.Surface { return s.World }},
	{"💹", "財經", func(s display.Snapshot) display.Surface { return s.Finance }},
}

func writeCard(b *strings.Builder, c display.Card) {
	fmt.Fprintf(b, "• <a href=\"%s\">%s</a>", html.EscapeString(c.Link), html.EscapeString(c.Title))
	if c.Source != "" {
		fmt.Fprintf(b, " <i>%s</i>", html.EscapeString(c.Source))
	}
	b.WriteString("\n")
}

// FormatDigest renders the cards not yet seen by the reader as Telegram HTML.
// It returns "" when every card was already seen.
func FormatDigest(snap display.Snapshot) string {
	var b strings.Builder
	sent := 0
	for _, sec := range sectionTitles {
		var fresh []display.Card
		for _, c := range sec.pick(snap).Cards {
			if !c.Seen {
				fresh = append(fresh, c)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		if len(fresh) > perSurface {
			fresh = fresh[:perSurface]
		}
		fmt.Fprintf(&b, "%s <b>%s</b>\n", sec.emoji, sec.title)
		for _, c := range fresh {
			writeCard(&b, c)
			sent++
		}
		b.WriteString("\n")
	}
	if sent == 0 {
		return ""
	}
	if snap.LastUpdate != "" {
		fmt.Fprintf(&b, "<i>最後更新: %s</i>", html.EscapeString(snap.LastUpdate))
	}
	return strings.TrimSpace(b.String())
}

// PushDigest sends the digest of snap. The headline image, when present,
// goes first as a photo.
func (c *Client) PushDigest(ctx context.Context, snap display.Snapshot) error {
	text := FormatDigest(snap)
	if text == "" {
		return ErrNothingToSend
	}
	if len(snap.Headline.Cards) > 0 && !snap.Headline.Cards[0].Seen {
		h := snap.Headline.Cards[0]
		if h.Image != "" {
			caption := fmt.Sprintf("<b>%s</b>", html.EscapeString(h.Title))
			if err := c.SendPhoto(ctx, h.Image, caption); err != nil {
				return fmt.Errorf("sending headline photo: %w", err)
			}
		}
	}
	return c.SendMessage(ctx, text)
}
