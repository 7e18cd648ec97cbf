package news

// Weather alerts leak into the business category upstream; the finance grid
// drops them.
var financeExcludeKeywords = []string{
	"天氣", "天气", "颱風", "台风", "暴雨警告",
	"typhoon", "weather warning", "rainstorm",
}

// IsRelevant applies the per-category topical check. Region-scoped feeds and
// the world and local categories are not checked.
func IsRelevant(a Article, kind Kind) bool {
	switch kind {
	case KindFinance:
		return !containsAny(a.Text(), financeExcludeKeywords)
	default:
		return true
	}
}
