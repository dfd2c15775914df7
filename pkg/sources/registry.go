package sources

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jwnews/jw-news-reader-api/internal/domain"
	"github.com/jwnews/jw-news-reader-api/pkg/httpclient"
)

// Result is one adapter fetch outcome: the parsed items plus the count
// of malformed entries skipped inside an otherwise valid response.
type Result struct {
	Items            []domain.RawItem
	SkippedMalformed int
}

// Adapter fetches and parses one source variant. Implementations fail
// with *domain.FetchError on hard failures and must never fail the
// whole fetch for a single malformed item.
type Adapter interface {
	Kind() string
	Fetch(ctx context.Context, src Source) (Result, error)
}

// Registry selects the adapter variant for a configured source.
type Registry interface {
	AdapterFor(src Source) (Adapter, error)
}

type adapterRegistry struct {
	adapters map[string]Adapter
	mu       sync.RWMutex
}

// NewRegistry builds a registry for the provided adapter implementations.
func NewRegistry(adapters ...Adapter) Registry {
	reg := &adapterRegistry{
		adapters: make(map[string]Adapter, len(adapters)),
	}

	for _, a := range adapters {
		if a == nil {
			continue
		}
		reg.adapters[strings.ToLower(strings.TrimSpace(a.Kind()))] = a
	}

	return reg
}

// AdapterFor selects the adapter for the given source based on its kind.
func (r *adapterRegistry) AdapterFor(src Source) (Adapter, error) {
	if src.Kind == "" {
		return nil, fmt.Errorf("source %q kind is empty", src.ID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.adapters[strings.ToLower(src.Kind)]; ok {
		return a, nil
	}

	return nil, fmt.Errorf("no adapter registered for kind %q (source %q)", src.Kind, src.ID)
}

// DefaultHTTPClient returns a tuned HTTP client for source adapters.
func DefaultHTTPClient() httpclient.Client {
	return httpclient.NewRestyClient(15 * time.Second)
}

// DefaultRegistry wires up the known adapter variants.
func DefaultRegistry(client httpclient.Client) Registry {
	if client == nil {
		client = DefaultHTTPClient()
	}

	return NewRegistry(
		NewRSSAdapter(client),
		NewSitemapAdapter(client),
		NewScrapeAdapter(client),
	)
}

// responseSnippet returns a truncated snippet of the response body for
// error messages.
func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
