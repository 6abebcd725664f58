package upstream

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"embatch/internal/config"
	"embatch/internal/embedding"
)

// Selector picks the next upstream for a call. Excluded names are skipped.
type Selector interface {
	Next(exclude map[string]bool) *Upstream
}

// Pool owns the group of inference endpoints, delegates selection to a
// balancer and runs the health monitor.
type Pool struct {
	upstreams []*Upstream
	selector  Selector
	monitor   *HealthMonitor
	logger    zerolog.Logger
}

// NewPool creates a Pool from configuration.
func NewPool(cfgs []config.UpstreamConfig, cfg *config.Config, logger zerolog.Logger) *Pool {
	ups := make([]*Upstream, 0, len(cfgs))
	for _, uc := range cfgs {
		ups = append(ups, NewUpstream(Config{
			Name:           uc.Name,
			URL:            uc.URL,
			Weight:         uc.Weight,
			RequestTimeout: cfg.GetUpstreamTimeoutDuration(),
			Logger:         logger,
		}))
	}

	p := &Pool{
		upstreams: ups,
		logger:    logger.With().Str("component", "pool").Logger(),
	}
	p.monitor = NewHealthMonitor(p, cfg.GetHealthCheckIntervalDuration(), logger)

	return p
}

// SetSelector sets the balancer used to pick upstreams
func (p *Pool) SetSelector(s Selector) {
	p.selector = s
}

// Upstreams returns all upstreams in the pool
func (p *Pool) Upstreams() []*Upstream {
	return p.upstreams
}

// GetHealthy returns the currently healthy upstreams
func (p *Pool) GetHealthy() []*Upstream {
	healthy := make([]*Upstream, 0, len(p.upstreams))
	for _, u := range p.upstreams {
		if u.IsHealthy() {
			healthy = append(healthy, u)
		}
	}
	return healthy
}

// Start starts the health monitor
func (p *Pool) Start() {
	p.monitor.Start()
}

// Stop stops the health monitor and closes all upstreams
func (p *Pool) Stop() {
	p.monitor.Stop()
	for _, u := range p.upstreams {
		u.Close()
	}
	p.logger.Info().Msg("upstream pool stopped")
}

// Embed performs a single inference call against one healthy upstream.
// There is no retry or failover: a failed flight is reported as-is and fans
// out to every caller riding on it.
func (p *Pool) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	u := p.selector.Next(nil)
	if u == nil {
		return nil, &embedding.UpstreamError{Err: errors.New("no healthy upstream available")}
	}

	embeddings, err := u.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}

	u.AddInputCount(uint64(len(inputs)))
	return embeddings, nil
}
