package balancer

import "embatch/internal/upstream"

// UpstreamProvider supplies the currently available upstreams
type UpstreamProvider interface {
	GetHealthy() []*upstream.Upstream
}
