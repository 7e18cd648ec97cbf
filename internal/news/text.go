package news

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText flattens HTML fragments that some sources put into titles and
// descriptions, collapsing whitespace. Plain strings pass through trimmed.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Clean normalises the free-text fields of an article in place.
func (a *Article) Clean() {
	a.Title = PlainText(a.Title)
	a.Description = PlainText(a.Description)
	a.Link = strings.TrimSpace(a.Link)
	a.ImageURL = strings.TrimSpace(a.ImageURL)
}
