package netstatus

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Prober decides reachability by requesting a URL on the server. Any HTTP
// answer, even an error status, means the device is connected and the server
// is reachable; a transport failure or timeout means offline.
type Prober struct {
	monitor  *Monitor
	client   *http.Client
	url      string
	interval time.Duration
	logger   *slog.Logger
}

// NewProber creates a Prober feeding monitor.
func NewProber(monitor *Monitor, url string, interval, timeout time.Duration, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Prober{
		monitor:  monitor,
		client:   &http.Client{Timeout: timeout},
		url:      url,
		interval: interval,
		logger:   logger,
	}
}

// Probe performs one reachability check.
func (p *Prober) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Error("invalid probe url", "url", p.url, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", p.url, "error", err)
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return true
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Prober) check(ctx context.Context) {
	online := p.Probe(ctx)
	if ctx.Err() != nil {
		return
	}
	p.monitor.Set(online)
}
