package upstream

import "sync/atomic"

// Status tracks the health and traffic counters of an upstream.
type Status struct {
	healthy      atomic.Bool
	requestCount atomic.Uint64
	inputCount   atomic.Uint64
}

// NewStatus creates a new Status, healthy by default.
func NewStatus() *Status {
	s := &Status{}
	s.healthy.Store(true)
	return s
}

// IsHealthy returns the health status
func (s *Status) IsHealthy() bool {
	return s.healthy.Load()
}

// SetHealthy sets the health status
func (s *Status) SetHealthy(healthy bool) {
	s.healthy.Store(healthy)
}

// IncrementRequestCount increments the batch call counter
func (s *Status) IncrementRequestCount() {
	s.requestCount.Add(1)
}

// AddInputCount adds to the forwarded input counter
func (s *Status) AddInputCount(n uint64) {
	s.inputCount.Add(n)
}

// SwapRequestCount returns the current batch call count and resets it to zero
func (s *Status) SwapRequestCount() uint64 {
	return s.requestCount.Swap(0)
}

// SwapInputCount returns the current input count and resets it to zero
func (s *Status) SwapInputCount() uint64 {
	return s.inputCount.Swap(0)
}
