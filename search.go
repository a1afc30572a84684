package converse

import "context"

// WebResult is a single web search hit.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Searcher abstracts a web search capability.
//
// Implementations return at most maxResults hits, best first. When the
// backend supports it and includeAnswer is set, a synthesized inline answer
// is returned as the first result. An empty slice with a nil error means
// the query matched nothing; callers must tolerate both empty results and
// errors without failing the surrounding turn.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, includeAnswer bool) ([]WebResult, error)
}
