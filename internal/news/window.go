package news

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrMissingDate and ErrUnparseableDate are warnings: the article is
	// still accepted when either is returned.
	ErrMissingDate     = errors.New("missing pubDate, assuming fresh")
	ErrUnparseableDate = errors.New("unparseable pubDate, assuming fresh")
)

var primaryLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02",
}

// Layouts tried after the first space has been replaced by "T". Upstream
// timestamps without a zone are UTC.
var separatorLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParsePubDate parses the loosely formatted dates upstream sources emit.
func ParsePubDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range primaryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	retry := strings.Replace(s, " ", "T", 1)
	for _, layout := range separatorLayouts {
		if t, err := time.Parse(layout, retry); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsWithinWindow reports whether pubDate lies in [now-window, now].
// Missing or unparseable dates fail open and come back with a warning error.
// Future dates are rejected.
func IsWithinWindow(pubDate string, window time.Duration, now time.Time) (bool, error) {
	if strings.TrimSpace(pubDate) == "" {
		return true, ErrMissingDate
	}
	published, ok := ParsePubDate(pubDate)
	if !ok {
		return true, ErrUnparseableDate
	}
	delta := now.Sub(published)
	return delta >= 0 && delta <= window, nil
}
