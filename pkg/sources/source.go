// Package sources defines the configured news sources and the adapter
// variants that fetch and parse them into raw items.
package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Supported adapter kinds.
	KindRSS     = "rss"
	KindSitemap = "sitemap"
	KindScrape  = "scrape"

	// DefaultUserAgent identifies the service to upstream sources.
	DefaultUserAgent = "jw-news-reader-api/1.0"

	// defaultPriority is assigned to sources that do not declare one;
	// lower numbers win dedup tie-breaks.
	defaultPriority = 100
)

// configFile represents the structure of the sources configuration file.
type configFile struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

// Source is a single configured news source.
type Source struct {
	ID       string `json:"id" yaml:"id"`
	Kind     string `json:"kind" yaml:"kind"`
	URL      string `json:"url" yaml:"url"`
	Priority int    `json:"priority" yaml:"priority"`
	Enabled  *bool  `json:"enabled" yaml:"enabled"`
	// UserAgent overrides the default outbound User-Agent.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
	// Headers are extra request headers (Authorization, cookies, ...);
	// values support environment expansion at load time.
	Headers map[string]string `json:"headers" yaml:"headers"`
	// Scrape holds the CSS selectors for kind "scrape".
	Scrape *ScrapeSelectors `json:"scrape" yaml:"scrape"`
}

// ScrapeSelectors configures how a listing page is turned into items.
type ScrapeSelectors struct {
	Item    string `json:"item" yaml:"item"`
	Title   string `json:"title" yaml:"title"`
	Link    string `json:"link" yaml:"link"`
	Time    string `json:"time" yaml:"time"`
	Summary string `json:"summary" yaml:"summary"`
}

// EnabledValue returns the enabled flag defaulting to true.
func (s Source) EnabledValue() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// RequestHeaders builds the outbound headers for this source: the
// kind-appropriate Accept, the source's User-Agent, and any configured
// extras on top.
func (s Source) RequestHeaders() map[string]string {
	headers := map[string]string{
		"User-Agent": DefaultUserAgent,
		"Accept":     "application/xml, text/xml;q=0.9, */*;q=0.8",
	}
	if s.Kind == KindScrape {
		headers["Accept"] = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
	}
	if ua := strings.TrimSpace(s.UserAgent); ua != "" {
		headers["User-Agent"] = ua
	}
	for k, v := range s.Headers {
		headers[k] = v
	}
	return headers
}

// LoadFile loads source definitions from a YAML/JSON file, expanding
// environment variables in the raw bytes before decoding.
func LoadFile(path string) ([]Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sources file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(raw)))

	parsed, err := parseSourcesFile(expanded, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}

	out := make([]Source, len(parsed.Sources))
	seen := make(map[string]struct{}, len(parsed.Sources))
	for i := range parsed.Sources {
		src := sanitizeSource(parsed.Sources[i])
		if err := validateSource(src); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, exists := seen[src.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
		out[i] = src
	}

	return out, nil
}

// parseSourcesFile attempts to decode the sources file content.
func parseSourcesFile(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var parsed configFile
		if err := d.fn(data, &parsed); err == nil {
			return parsed, nil
		}
	}

	return configFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

// sanitizeSource trims and normalizes one source entry.
func sanitizeSource(src Source) Source {
	src.ID = strings.ToLower(strings.TrimSpace(src.ID))
	src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))
	src.URL = strings.TrimSpace(src.URL)
	src.UserAgent = strings.TrimSpace(src.UserAgent)
	if src.Priority <= 0 {
		src.Priority = defaultPriority
	}
	if src.Enabled == nil {
		def := true
		src.Enabled = &def
	}
	src.Headers = sanitizeHeaders(src.Headers)
	if src.Scrape != nil {
		sel := *src.Scrape
		sel.Item = strings.TrimSpace(sel.Item)
		sel.Title = strings.TrimSpace(sel.Title)
		sel.Link = strings.TrimSpace(sel.Link)
		sel.Time = strings.TrimSpace(sel.Time)
		sel.Summary = strings.TrimSpace(sel.Summary)
		src.Scrape = &sel
	}
	return src
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validateSource checks that required fields are present and sane.
func validateSource(src Source) error {
	if src.ID == "" {
		return errors.New("id is required")
	}
	switch src.Kind {
	case KindRSS, KindSitemap, KindScrape:
	case "":
		return fmt.Errorf("kind is required for source %q", src.ID)
	default:
		return fmt.Errorf("kind %q not supported for source %q", src.Kind, src.ID)
	}
	if src.URL == "" {
		return fmt.Errorf("url is required for source %q", src.ID)
	}
	u, err := url.Parse(src.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("url %q is not an absolute http(s) url for source %q", src.URL, src.ID)
	}
	return nil
}

// Priorities maps source ids to their configured dedup priority.
func Priorities(srcs []Source) map[string]int {
	out := make(map[string]int, len(srcs))
	for _, s := range srcs {
		out[s.ID] = s.Priority
	}
	return out
}
