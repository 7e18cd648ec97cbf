// Package display turns filtered results into card view models per surface
// and flags headlines the reader has already been shown.
package display

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/hknews/internal/dedup"
	"github.com/deusflow/hknews/internal/feed"
	"github.com/deusflow/hknews/internal/news"
	"github.com/deusflow/hknews/internal/sources"
)

const (
	// NoDescription replaces an empty article description.
	NoDescription = "無摘要"
	// HomeTag marks local cards that mention the home city.
	HomeTag = "香港"

	timeLayout = "2006/01/02 15:04:05"
)

// Card is one article as shown to the reader.
type Card struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Link        string   `json:"link"`
	Image       string   `json:"image"`
	Source      string   `json:"source"`
	PubDate     string   `json:"pubDate,omitempty"`
	Languages   []string `json:"languages,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	// Seen is set when the title was shown on this surface before.
	Seen bool `json:"seen"`
}

// Surface is one display region's current content.
type Surface struct {
	Name   string `json:"name"`
	Cards  []Card `json:"cards"`
	Notice string `json:"notice,omitempty"`
	Stale  bool   `json:"stale,omitempty"`
}

// RegionBlock is one region's cards within the regional surface.
type RegionBlock struct {
	Label  string `json:"label"`
	Cards  []Card `json:"cards"`
	Notice string `json:"notice,omitempty"`
	Stale  bool   `json:"stale,omitempty"`
}

// Snapshot is a copy of the board at one moment.
type Snapshot struct {
	Headline   Surface       `json:"headline"`
	Local      Surface       `json:"local"`
	World      Surface       `json:"world"`
	Finance    Surface       `json:"finance"`
	Regional   []RegionBlock `json:"regional"`
	LastUpdate string        `json:"lastUpdate,omitempty"`
}

// Board implements feed.Display.
type Board struct {
	registry    *sources.Registry
	tracker     *dedup.Tracker
	regionOrder []string
	loc         *time.Location

	mu         sync.Mutex
	surfaces   map[string]*Surface
	regions    map[string]*RegionBlock
	touched    map[string]struct{}
	lastUpdate time.Time
}

var _ feed.Display = (*Board)(nil)

// New creates a board. regionOrder is the configured region label order.
func New(registry *sources.Registry, tracker *dedup.Tracker, regionOrder []string) *Board {
	loc, err := time.LoadLocation("Asia/Hong_Kong")
	if err != nil {
		loc = time.FixedZone("HKT", 8*60*60)
	}
	return &Board{
		registry:    registry,
		tracker:     tracker,
		regionOrder: append([]string(nil), regionOrder...),
		loc:         loc,
		surfaces:    make(map[string]*Surface),
		regions:     make(map[string]*RegionBlock),
		touched:     make(map[string]struct{}),
	}
}

// seenScope is the dedup surface id. Each region block has its own.
func seenScope(p feed.Presentation) string {
	if p.Region != "" {
		return p.Surface + "_" + p.Region
	}
	return p.Surface
}

// scopes lists every dedup surface id the board can write.
func (b *Board) scopes() []string {
	out := make([]string, 0, 4+len(b.regionOrder))
	for _, k := range news.CategoryKinds() {
		out = append(out, string(k))
	}
	for _, label := range b.regionOrder {
		out = append(out, string(news.KindRegional)+"_"+label)
	}
	return out
}

// Load reads persisted seen-title sets and drops the legacy global list.
func (b *Board) Load(ctx context.Context) error {
	if err := b.tracker.DropLegacy(ctx); err != nil {
		return err
	}
	for _, scope := range b.scopes() {
		if err := b.tracker.Load(ctx, scope); err != nil {
			return err
		}
	}
	return nil
}

// Flush persists the seen-title sets of surfaces rendered since the last flush.
func (b *Board) Flush(ctx context.Context) error {
	b.mu.Lock()
	scopes := make([]string, 0, len(b.touched))
	for s := range b.touched {
		scopes = append(scopes, s)
	}
	b.touched = make(map[string]struct{})
	b.mu.Unlock()

	sort.Strings(scopes)
	for _, scope := range scopes {
		if err := b.tracker.Save(ctx, scope); err != nil {
			return fmt.Errorf("flushing seen titles: %w", err)
		}
	}
	return nil
}

func (b *Board) card(a news.ScoredArticle, kind news.Kind, scope string) Card {
	art := a.Article
	c := Card{
		Title:       art.Title,
		Description: art.Description,
		Link:        art.Link,
		Image:       b.registry.ImageFor(art),
		Source:      sources.Label(art),
		PubDate:     art.PubDate,
	}
	if c.Description == "" {
		c.Description = NoDescription
	}
	if a.TradScore > 0 {
		c.Languages = append(c.Languages, "繁")
	}
	if a.EngScore > 0 {
		c.Languages = append(c.Languages, "Eng")
	}
	if kind == news.KindLocal && strings.Contains(art.Title+art.Description, HomeTag) {
		c.Tags = append(c.Tags, HomeTag)
	}

	// check before marking, so Seen reflects earlier renders only
	c.Seen = b.tracker.IsSeen(scope, art.Title)
	b.tracker.MarkSeen(scope, art.Title)
	return c
}

func (b *Board) surface(name string) *Surface {
	s, ok := b.surfaces[name]
	if !ok {
		s = &Surface{Name: name}
		b.surfaces[name] = s
	}
	return s
}

func (b *Board) region(label string) *RegionBlock {
	r, ok := b.regions[label]
	if !ok {
		r = &RegionBlock{Label: label}
		b.regions[label] = r
	}
	return r
}

func (b *Board) Render(p feed.Presentation, articles []news.ScoredArticle) {
	scope := seenScope(p)
	cards := make([]Card, 0, len(articles))
	for _, a := range articles {
		cards = append(cards, b.card(a, p.Kind, scope))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.touched[scope] = struct{}{}

	if p.Region != "" {
		r := b.region(p.Region)
		r.Cards, r.Notice, r.Stale = cards, "", p.Stale
		return
	}

	s := b.surface(p.Surface)
	if p.Append {
		s.Cards = append(s.Cards, cards...)
	} else {
		s.Cards = cards
		s.Stale = p.Stale
	}
	s.Notice = ""
	if p.Headline && !p.UpdatedAt.IsZero() {
		b.lastUpdate = p.UpdatedAt
	}
}

// RenderEmpty shows message in place of cards. An append keeps the cards
// already shown.
func (b *Board) RenderEmpty(p feed.Presentation, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p.Region != "" {
		r := b.region(p.Region)
		r.Cards, r.Notice, r.Stale = nil, message, false
		return
	}
	s := b.surface(p.Surface)
	if !p.Append {
		s.Cards = nil
		s.Stale = false
	}
	s.Notice = message
}

func (b *Board) Clear(surface string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if surface == string(news.KindRegional) {
		b.regions = make(map[string]*RegionBlock)
		return
	}
	delete(b.surfaces, surface)
}

// Reset empties every surface. Seen-title sets are kept.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surfaces = make(map[string]*Surface)
	b.regions = make(map[string]*RegionBlock)
	b.lastUpdate = time.Time{}
}

func copySurface(s *Surface, name string) Surface {
	if s == nil {
		return Surface{Name: name}
	}
	out := *s
	out.Cards = append([]Card(nil), s.Cards...)
	return out
}

// Snapshot copies the board. Region blocks follow the configured order;
// blocks for unknown labels follow in label order.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Headline: copySurface(b.surfaces[string(news.KindHeadline)], string(news.KindHeadline)),
		Local:    copySurface(b.surfaces[string(news.KindLocal)], string(news.KindLocal)),
		World:    copySurface(b.surfaces[string(news.KindWorld)], string(news.KindWorld)),
		Finance:  copySurface(b.surfaces[string(news.KindFinance)], string(news.KindFinance)),
	}
	if !b.lastUpdate.IsZero() {
		snap.LastUpdate = b.lastUpdate.In(b.loc).Format(timeLayout)
	}

	listed := make(map[string]bool, len(b.regionOrder))
	for _, label := range b.regionOrder {
		listed[label] = true
		if r, ok := b.regions[label]; ok {
			snap.Regional = append(snap.Regional, copyRegion(r))
		}
	}
	var extra []string
	for label := range b.regions {
		if !listed[label] {
			extra = append(extra, label)
		}
	}
	sort.Strings(extra)
	for _, label := range extra {
		snap.Regional = append(snap.Regional, copyRegion(b.regions[label]))
	}
	return snap
}

func copyRegion(r *RegionBlock) RegionBlock {
	out := *r
	out.Cards = append([]Card(nil), r.Cards...)
	return out
}
