package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second

	// Per-client request budget of the book server.
	serverRequestsPerSecond = 20
	serverBurst             = 40
)
