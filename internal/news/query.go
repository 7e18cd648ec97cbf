package news

// Query is what the orchestrator asks an upstream for. Empty fields are
// omitted from the request.
type Query struct {
	Category string
	Country  string
	Keyword  string
	// Cursor is the opaque next-page token from a previous response.
	Cursor string
}

// QueryFor is the upstream query for a category feed. Headline and local
// are pinned to the home country.
func QueryFor(kind Kind, homeCountry string) Query {
	switch kind {
	case KindHeadline:
		return Query{Category: "top", Country: homeCountry}
	case KindLocal:
		return Query{Category: "local", Country: homeCountry}
	case KindWorld:
		return Query{Category: "world"}
	case KindFinance:
		return Query{Category: "business"}
	}
	return Query{}
}

// RegionQuery restricts results to one country.
func RegionQuery(country string) Query {
	return Query{Country: country}
}
