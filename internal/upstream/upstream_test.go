package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"embatch/internal/embedding"
)

func newTestUpstream(url string) *Upstream {
	return NewUpstream(Config{
		Name:           "test",
		URL:            url,
		Weight:         1,
		RequestTimeout: 2 * time.Second,
		Logger:         zerolog.Nop(),
	})
}

func TestUpstream_Embed(t *testing.T) {
	var gotBody embedding.EmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}

		out := make([][]float32, len(gotBody.Inputs))
		for i := range gotBody.Inputs {
			out[i] = []float32{float32(i)}
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	u := newTestUpstream(srv.URL)
	defer u.Close()

	embeddings, err := u.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(gotBody.Inputs) != 2 || gotBody.Inputs[0] != "hello" {
		t.Errorf("upstream saw inputs %v, want [hello world]", gotBody.Inputs)
	}
	if len(embeddings) != 2 || embeddings[1][0] != 1 {
		t.Errorf("embeddings = %v, want positional vectors", embeddings)
	}
	if u.SwapRequestCount() != 1 {
		t.Error("request counter not incremented")
	}
}

func TestUpstream_Embed_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	u := newTestUpstream(srv.URL)
	defer u.Close()

	_, err := u.Embed(context.Background(), []string{"a"})
	var upErr *embedding.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if upErr.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", upErr.Status)
	}
	// A non-success status is the upstream answering; health is untouched.
	if !u.IsHealthy() {
		t.Error("upstream marked unhealthy on an HTTP error response")
	}
}

func TestUpstream_Embed_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	u := newTestUpstream(srv.URL)
	defer u.Close()

	_, err := u.Embed(context.Background(), []string{"a"})
	var upErr *embedding.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if upErr.Status != 0 {
		t.Errorf("Status = %d, want 0 for transport failure", upErr.Status)
	}
	if u.IsHealthy() {
		t.Error("upstream still healthy after a transport failure")
	}
}

func TestUpstream_Embed_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	}))
	defer srv.Close()

	u := newTestUpstream(srv.URL)
	defer u.Close()

	_, err := u.Embed(context.Background(), []string{"a"})
	var upErr *embedding.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %v, want UpstreamError for undecodable body", err)
	}
}

func TestUpstream_CheckHealth(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	u := newTestUpstream(srv.URL)
	defer u.Close()

	if err := u.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}

	healthy = false
	if err := u.CheckHealth(context.Background()); err == nil {
		t.Fatal("CheckHealth passed against a failing endpoint")
	}
}
