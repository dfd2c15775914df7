package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSendsHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte("<ok/>"))
	}))
	defer srv.Close()

	c := NewRestyClient(5 * time.Second)
	resp, err := c.Get(context.Background(), srv.URL, map[string]string{
		"User-Agent": "jw-news-reader-api/1.0",
		"Accept":     "application/xml",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, []byte("<ok/>"), resp.Body())
	assert.Equal(t, "application/xml", resp.Header().Get("Content-Type"))
	assert.Equal(t, "jw-news-reader-api/1.0", gotUA)
	assert.Equal(t, "application/xml", gotAccept)
}

func TestGetReturnsNonOKResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewRestyClient(5 * time.Second)
	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err, "non-2xx must surface as a response, not an error")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode())
}

func TestGetHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewRestyClient(5 * time.Second)
	_, err := c.Get(ctx, srv.URL, nil)
	require.Error(t, err)
}
