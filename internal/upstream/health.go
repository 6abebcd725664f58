package upstream

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HealthMonitor periodically probes every upstream's health route and
// updates the availability flags the balancer selects on.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   zerolog.Logger
}

// NewHealthMonitor creates a new HealthMonitor
func NewHealthMonitor(pool *Pool, interval time.Duration, logger zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger.With().Str("component", "health").Logger(),
	}
}

// Start launches the monitor loop
func (m *HealthMonitor) Start() {
	go m.loop()
}

// Stop stops the monitor and waits for the loop to exit
func (m *HealthMonitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *HealthMonitor) loop() {
	defer close(m.doneCh)

	// Probe once up front so the balancer has fresh state before traffic.
	m.sweep()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

// sweep probes all upstreams in parallel.
func (m *HealthMonitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	for _, u := range m.pool.Upstreams() {
		u := u
		g.Go(func() error {
			err := u.CheckHealth(gCtx)
			healthy := err == nil

			if healthy != u.IsHealthy() {
				if healthy {
					m.logger.Info().Str("upstream", u.Name()).Msg("upstream recovered")
				} else {
					m.logger.Warn().Str("upstream", u.Name()).Err(err).Msg("upstream unhealthy")
				}
			}
			u.SetHealthy(healthy)
			return nil
		})
	}
	g.Wait()
}
