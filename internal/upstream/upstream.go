package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"embatch/internal/embedding"
)

// Upstream represents a single embedding inference endpoint.
type Upstream struct {
	name    string
	baseURL string
	weight  int

	httpClient *http.Client
	status     *Status
	logger     zerolog.Logger
}

// Config for creating a new Upstream
type Config struct {
	Name           string
	URL            string
	Weight         int
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// NewUpstream creates a new Upstream instance
func NewUpstream(cfg Config) *Upstream {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}

	return &Upstream{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		weight:     cfg.Weight,
		httpClient: httpClient,
		status:     NewStatus(),
		logger:     cfg.Logger.With().Str("upstream", cfg.Name).Logger(),
	}
}

// Name returns the upstream name
func (u *Upstream) Name() string {
	return u.name
}

// BaseURL returns the endpoint base URL
func (u *Upstream) BaseURL() string {
	return u.baseURL
}

// Weight returns the weight for load balancing
func (u *Upstream) Weight() int {
	return u.weight
}

// IsHealthy returns the health status
func (u *Upstream) IsHealthy() bool {
	return u.status.IsHealthy()
}

// SetHealthy sets the health status
func (u *Upstream) SetHealthy(healthy bool) {
	u.status.SetHealthy(healthy)
}

// IncrementRequestCount increments the batch call counter
func (u *Upstream) IncrementRequestCount() {
	u.status.IncrementRequestCount()
}

// AddInputCount adds to the forwarded input counter
func (u *Upstream) AddInputCount(n uint64) {
	u.status.AddInputCount(n)
}

// SwapRequestCount returns the current batch call count and resets it to zero
func (u *Upstream) SwapRequestCount() uint64 {
	return u.status.SwapRequestCount()
}

// SwapInputCount returns the current input count and resets it to zero
func (u *Upstream) SwapInputCount() uint64 {
	return u.status.SwapInputCount()
}

// Embed sends one batched inference call and returns one embedding per
// input, in input order.
func (u *Upstream) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	reqBytes, err := json.Marshal(embedding.EmbedRequest{Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/embed", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		// The health monitor re-probes the endpoint before it is handed
		// traffic again.
		u.SetHealthy(false)
		return nil, &embedding.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	u.IncrementRequestCount()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &embedding.UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	// The inference service returns the embeddings directly as an array,
	// not wrapped in an object.
	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, &embedding.UpstreamError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return embeddings, nil
}

// CheckHealth probes the endpoint's health route.
func (u *Upstream) CheckHealth(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}

	return nil
}

// Close releases idle connections
func (u *Upstream) Close() {
	u.httpClient.CloseIdleConnections()
}
