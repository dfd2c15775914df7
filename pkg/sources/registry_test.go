package sources

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jwnews/jw-news-reader-api/pkg/httpclient"
)

// fakeResponse implements httpclient.Response for adapter tests.
type fakeResponse struct {
	status int
	body   []byte
	header http.Header
}

func (r fakeResponse) StatusCode() int { return r.status }
func (r fakeResponse) Body() []byte    { return r.body }

func (r fakeResponse) Header() http.Header {
	if r.header == nil {
		return http.Header{}
	}
	return r.header
}

// fakeClient serves canned responses per URL.
type fakeClient struct {
	responses map[string]fakeResponse
	err       error
	requests  []string
}

func (c *fakeClient) Get(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	c.requests = append(c.requests, url)
	if c.err != nil {
		return nil, c.err
	}
	resp, ok := c.responses[url]
	if !ok {
		return fakeResponse{status: http.StatusNotFound}, nil
	}
	return resp, nil
}

func okResponse(body string) fakeResponse {
	return fakeResponse{status: http.StatusOK, body: []byte(body)}
}

func enabled(v bool) *bool { return &v }

func TestRegistrySelectsByKind(t *testing.T) {
	client := &fakeClient{}
	reg := DefaultRegistry(client)

	for _, kind := range []string{KindRSS, KindSitemap, KindScrape} {
		a, err := reg.AdapterFor(Source{ID: "s", Kind: kind})
		if err != nil {
			t.Fatalf("AdapterFor(%s): %v", kind, err)
		}
		if a.Kind() != kind {
			t.Fatalf("AdapterFor(%s) returned kind %s", kind, a.Kind())
		}
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	reg := DefaultRegistry(&fakeClient{})
	if _, err := reg.AdapterFor(Source{ID: "s", Kind: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := reg.AdapterFor(Source{ID: "s"}); err == nil {
		t.Fatal("expected error for empty kind")
	}
}

func TestRegistryKindIsCaseInsensitive(t *testing.T) {
	reg := DefaultRegistry(&fakeClient{})
	if _, err := reg.AdapterFor(Source{ID: "s", Kind: "RSS"}); err != nil {
		t.Fatalf("AdapterFor(RSS): %v", err)
	}
}

var errDial = errors.New("dial tcp: connection refused")
