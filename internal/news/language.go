package news

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultTraditional and DefaultSimplified are paired samples: the n-th rune
// of one is the script counterpart of the n-th rune of the other.
const (
	DefaultTraditional = "個這會與為於當從學國後發經濟長們來時說對開關現產區華灣實機"
	DefaultSimplified  = "个这会与为于当从学国后发经济长们来时说对开关现产区华湾实机"
)

// DefaultEnglishMinLength is the rune count a CJK-stripped title must exceed.
const DefaultEnglishMinLength = 10

var englishPattern = regexp.MustCompile(`^[A-Za-z0-9\s.,!?]+$`)

// Classifier scores titles for Traditional-script Chinese and English. It is
// a heuristic over small curated rune sets, not a script detector.
type Classifier struct {
	traditional      map[rune]struct{}
	simplified       map[rune]struct{}
	englishMinLength int
}

func NewClassifier(traditional, simplified string, englishMinLength int) *Classifier {
	return &Classifier{
		traditional:      runeSet(traditional),
		simplified:       runeSet(simplified),
		englishMinLength: englishMinLength,
	}
}

func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultTraditional, DefaultSimplified, DefaultEnglishMinLength)
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, utf8.RuneCountInString(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		set[r] = struct{}{}
	}
	return set
}

// TraditionalScore returns trad/(trad+simp+1) when traditional runes are at
// least as common as simplified ones, else 0. The result is always below 1.
func (c *Classifier) TraditionalScore(text string) float64 {
	var trad, simp int
	for _, r := range text {
		if _, ok := c.traditional[r]; ok {
			trad++
		}
		if _, ok := c.simplified[r]; ok {
			simp++
		}
	}
	if trad >= simp && trad > 0 {
		return float64(trad) / float64(trad+simp+1)
	}
	return 0
}

// IsEnglish strips Han runes and requires the rest to be plain Latin text
// longer than the configured minimum.
func (c *Classifier) IsEnglish(text string) bool {
	clean := strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Han, r) {
			return -1
		}
		return r
	}, text)
	return englishPattern.MatchString(clean) && utf8.RuneCountInString(clean) > c.englishMinLength
}

// Score classifies a title into a ScoredArticle.
func (c *Classifier) Score(a Article) ScoredArticle {
	s := ScoredArticle{Article: a, TradScore: c.TraditionalScore(a.Title)}
	if c.IsEnglish(a.Title) {
		s.EngScore = 1
	}
	return s
}
