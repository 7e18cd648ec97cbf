// Package sources holds the source whitelist and the display assets keyed by
// source identifier.
package sources

import (
	"sort"
	"strings"

	"github.com/deusflow/hknews/internal/news"
)

// DefaultKey is the logo key used for sources with no asset of their own.
const DefaultKey = "default"

// UnknownSourceLabel is shown when an article names no source.
const UnknownSourceLabel = "未知來源"

// Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	valid         []string
	logos         map[string]string
	logoKeys      []string
	logoPreferred []string
}

// New builds a registry. An empty valid list disables whitelist enforcement.
// logoPreferred lists sources whose own logo is shown instead of the article image.
func New(valid []string, logos map[string]string, logoPreferred []string) *Registry {
	r := &Registry{
		valid:         normalizeAll(valid),
		logos:         make(map[string]string, len(logos)),
		logoPreferred: normalizeAll(logoPreferred),
	}
	for k, v := range logos {
		k = normalize(k)
		r.logos[k] = v
		if k != DefaultKey {
			r.logoKeys = append(r.logoKeys, k)
		}
	}
	// longest key first so "yahoo_hk" wins over "yahoo"
	sort.Slice(r.logoKeys, func(i, j int) bool {
		if len(r.logoKeys[i]) != len(r.logoKeys[j]) {
			return len(r.logoKeys[i]) > len(r.logoKeys[j])
		}
		return r.logoKeys[i] < r.logoKeys[j]
	})
	return r
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = normalize(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// matches reports an exact or substring match of id against any entry.
func matches(id string, list []string) bool {
	for _, v := range list {
		if id == v || strings.Contains(id, v) {
			return true
		}
	}
	return false
}

// Enforcing reports whether a whitelist is configured.
func (r *Registry) Enforcing() bool {
	return len(r.valid) > 0
}

// IsAccepted implements news.SourcePolicy. With no whitelist every source is
// accepted; with one, a missing identifier is rejected.
func (r *Registry) IsAccepted(sourceID string) bool {
	if !r.Enforcing() {
		return true
	}
	id := normalize(sourceID)
	if id == "" {
		return false
	}
	return matches(id, r.valid)
}

// Lookup returns the logo for a source, falling back to the default asset.
func (r *Registry) Lookup(sourceID string) string {
	id := normalize(sourceID)
	if id != "" {
		if logo, ok := r.logos[id]; ok {
			return logo
		}
		for _, k := range r.logoKeys {
			if strings.Contains(id, k) {
				return r.logos[k]
			}
		}
	}
	return r.logos[DefaultKey]
}

// PrefersLogo reports whether the source's logo replaces article images.
func (r *Registry) PrefersLogo(sourceID string) bool {
	id := normalize(sourceID)
	return id != "" && matches(id, r.logoPreferred)
}

// ImageFor picks the image to display for an article.
func (r *Registry) ImageFor(a news.Article) string {
	src := a.Source()
	if r.PrefersLogo(src) || a.ImageURL == "" {
		return r.Lookup(src)
	}
	return a.ImageURL
}

// Label returns a display label for the article's source.
func Label(a news.Article) string {
	if s := a.Source(); s != "" {
		return s
	}
	return UnknownSourceLabel
}
