package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"embatch/internal/config"
	"embatch/internal/embedding"
)

// fakeInference mimics a text-embeddings-inference endpoint: /embed returns
// one vector per input, /health returns 200.
type fakeInference struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeInference) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		var req embedding.EmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.calls = append(f.calls, req.Inputs)
		f.mu.Unlock()

		out := make([][]float32, len(req.Inputs))
		for i, s := range req.Inputs {
			out[i] = []float32{float32(len(s)), float32(s[0])}
		}
		json.NewEncoder(w).Encode(out)
	})
	return mux
}

func (f *fakeInference) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func startTestServer(t *testing.T, mutate func(*config.Config)) (*fakeInference, string) {
	t.Helper()

	inference := &fakeInference{}
	upstreamSrv := httptest.NewServer(inference.handler())
	t.Cleanup(upstreamSrv.Close)

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0 // ephemeral
	cfg.Upstreams = []config.UpstreamConfig{{Name: "fake", URL: upstreamSrv.URL, Weight: 1}}
	cfg.ShutdownGracePeriod = 2000
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	return inference, "http://" + srv.Addr()
}

func TestServer_EndToEnd_SizeTrigger(t *testing.T) {
	inference, base := startTestServer(t, func(c *config.Config) {
		c.MaxBatchSize = 3
		c.MaxWaitTime = 10000
	})

	var wg sync.WaitGroup
	type result struct {
		status     int
		embeddings [][]float32
	}
	inputs := []string{"x", "yy", "zzz"}
	results := make([]result, len(inputs))

	for i, in := range inputs {
		i, in := i, in
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(embedding.EmbedRequest{Inputs: []string{in}})
			resp, err := http.Post(base+"/embed", "application/json", bytes.NewReader(body))
			if err != nil {
				t.Errorf("POST /embed: %v", err)
				return
			}
			defer resp.Body.Close()

			var embeddings [][]float32
			json.NewDecoder(resp.Body).Decode(&embeddings)
			results[i] = result{resp.StatusCode, embeddings}
		}()
	}
	wg.Wait()

	for i, in := range inputs {
		if results[i].status != http.StatusOK {
			t.Fatalf("caller %d: status = %d", i, results[i].status)
		}
		if len(results[i].embeddings) != 1 {
			t.Fatalf("caller %d: got %d embeddings, want 1", i, len(results[i].embeddings))
		}
		if results[i].embeddings[0][0] != float32(len(in)) {
			t.Errorf("caller %d: embedding %v not aligned to input %q", i, results[i].embeddings[0], in)
		}
	}

	if n := inference.callCount(); n != 1 {
		t.Errorf("upstream calls = %d, want one coalesced flight", n)
	}
}

func TestServer_EndToEnd_Health(t *testing.T) {
	_, base := startTestServer(t, nil)

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServer_EndToEnd_Oversize(t *testing.T) {
	inference, base := startTestServer(t, func(c *config.Config) {
		c.MaxTotalInputs = 2
	})

	body, _ := json.Marshal(embedding.EmbedRequest{Inputs: []string{"a", "b", "c"}})
	resp, err := http.Post(base+"/embed", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /embed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
	if n := inference.callCount(); n != 0 {
		t.Errorf("upstream calls = %d, want 0", n)
	}
}
