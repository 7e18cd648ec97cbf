package display

import (
	"fmt"
	"strings"
)

// Search keeps cards whose title or description contains q, ignoring case.
// The headline is not searched. An empty q returns s unchanged.
func (s Snapshot) Search(q string) Snapshot {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return s
	}
	match := func(cards []Card) []Card {
		var out []Card
		for _, c := range cards {
			if strings.Contains(strings.ToLower(c.Title+" "+c.Description), q) {
				out = append(out, c)
			}
		}
		return out
	}

	out := s
	out.Local.Cards = match(s.Local.Cards)
	out.World.Cards = match(s.World.Cards)
	out.Finance.Cards = match(s.Finance.Cards)
	out.Regional = make([]RegionBlock, 0, len(s.Regional))
	for _, r := range s.Regional {
		r.Cards = match(r.Cards)
		out.Regional = append(out.Regional, r)
	}
	return out
}

// Surfaces lists the category surfaces in display order.
func (s Snapshot) Surfaces() []Surface {
	return []Surface{s.Headline, s.Local, s.World, s.Finance}
}

var surfaceTitles = map[string]string{
	"headline": "頭條",
	"local":    "本地",
	"world":    "國際",
	"finance":  "財經",
	"regional": "地區",
}

func writeCards(b *strings.Builder, cards []Card, notice string, stale bool) {
	if stale {
		b.WriteString("  (舊資料)\n")
	}
	if notice != "" {
		fmt.Fprintf(b, "  %s\n", notice)
	}
	for _, c := range cards {
		mark := "•"
		if c.Seen {
			mark = "·"
		}
		fmt.Fprintf(b, "  %s %s [%s]\n", mark, c.Title, c.Source)
		if c.Description != NoDescription {
			fmt.Fprintf(b, "    %s\n", truncate(c.Description, 120))
		}
		fmt.Fprintf(b, "    %s\n", c.Link)
	}
}

// FormatText renders the snapshot as a plain-text digest.
func FormatText(s Snapshot) string {
	var b strings.Builder
	if s.LastUpdate != "" {
		fmt.Fprintf(&b, "最後更新: %s\n", s.LastUpdate)
	}
	for _, surface := range s.Surfaces() {
		if len(surface.Cards) == 0 && surface.Notice == "" {
			continue
		}
		fmt.Fprintf(&b, "\n== %s ==\n", surfaceTitles[surface.Name])
		writeCards(&b, surface.Cards, surface.Notice, surface.Stale)
	}
	if len(s.Regional) > 0 {
		fmt.Fprintf(&b, "\n== %s ==\n", surfaceTitles["regional"])
		for _, r := range s.Regional {
			fmt.Fprintf(&b, " %s\n", r.Label)
			writeCards(&b, r.Cards, r.Notice, r.Stale)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
