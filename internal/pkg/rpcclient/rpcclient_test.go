package rpcclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docboxhq/docbox/internal/conf"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(conf.RPCConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 2})
	return c, srv
}

func TestGet_ReturnsBodyOnSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scrape?url=x", r.URL.String())
		w.Write([]byte(`{"title":"hi"}`))
	})

	body, err := c.Get(context.Background(), "/scrape?url=x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"hi"}`, string(body))
}

func TestGet_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
	}))
	t.Cleanup(srv.Close)
	c := New(conf.RPCConfig{BaseURL: srv.URL, APIKey: "secret"})

	_, err := c.Get(context.Background(), "/ping")
	require.NoError(t, err)
}

func TestGet_ClientErrorIsNotRetried(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("nope"))
	})

	_, err := c.Get(context.Background(), "/missing")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestGet_ServerErrorIsRetriedThenSucceeds(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	})

	body, err := c.Get(context.Background(), "/flaky")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 3, calls)
}

func TestGet_ExhaustsRetriesAndReturnsError(t *testing.T) {
	var calls int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Get(context.Background(), "/always-down")
	require.Error(t, err)
	assert.Equal(t, 3, calls) // one initial attempt + 2 configured retries
}

func TestPostBinary_SendsContentTypeAndBody(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		buf, _ := io.ReadAll(r.Body)
		gotBody = buf
		w.Write([]byte("converted"))
	})

	out, err := c.PostBinary(context.Background(), "/convert", "application/octet-stream", []byte("raw-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", gotContentType)
	assert.Equal(t, []byte("raw-bytes"), gotBody)
	assert.Equal(t, []byte("converted"), out)
}

func TestPostJSON_MarshalsRequestAndDecodesResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"pages":3}`))
	})

	type req struct {
		Name string `json:"name"`
	}
	type resp struct {
		Pages int `json:"pages"`
	}

	var out resp
	err := c.PostJSON(context.Background(), "/probe", req{Name: "doc.pdf"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Pages)
}
