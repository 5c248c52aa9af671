package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantOk     bool
		wantStatus int
		wantData   bool
	}{
		{
			name: "json 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"kind":"Pod"}`))
			},
			wantOk:     true,
			wantStatus: http.StatusOK,
			wantData:   true,
		},
		{
			name: "plain text error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte("not found"))
			},
			wantOk:     false,
			wantStatus: http.StatusNotFound,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantOk:     false,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := New(srv.Client(), "kubeflux-test/1")
			resp := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)

			assert.Equal(t, tt.wantOk, resp.Ok)
			assert.Equal(t, tt.wantStatus, resp.Status)
			if tt.wantData {
				assert.NotNil(t, resp.Data)
			}
		})
	}
}

func TestDoNeverErrors(t *testing.T) {
	c := New(http.DefaultClient, "kubeflux-test/1")
	resp := c.Do(context.Background(), http.MethodGet, "http://127.0.0.1:0/unreachable", nil, nil)
	assert.False(t, resp.Ok)
	assert.NotEmpty(t, resp.StatusText)
}

func TestDoSetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := New(srv.Client(), "kubeflux-test/1")
	resp := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.True(t, resp.Ok)
	assert.Equal(t, "kubeflux-test/1", gotUA)
}

func TestDo_ExposesResponseHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.Client(), "kubeflux-test/1")
	resp := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.Equal(t, "3", resp.Header.Get("Retry-After"))
}

func TestOpenStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{\"type\":\"ADDED\"}\n"))
	}))
	defer srv.Close()

	c := New(srv.Client(), "kubeflux-test/1")
	resp, err := c.OpenStream(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
