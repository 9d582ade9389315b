package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ramsred/agentic-platform-mcp/pkg/mcpclient"
)

// Refresher periodically re-runs capability discovery on ready sessions so a
// category marked unavailable gets retried and provider-side capability
// changes are picked up without a reconnect.
type Refresher struct {
	registry *Registry
	cron     *cron.Cron
	timeout  time.Duration
}

// NewRefresher schedules a discovery cycle at the given interval
func NewRefresher(registry *Registry, interval time.Duration) (*Refresher, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if interval < time.Minute {
		interval = time.Minute
	}

	r := &Refresher{
		registry: registry,
		cron:     cron.New(),
		timeout:  30 * time.Second,
	}

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := r.cron.AddFunc(spec, r.refreshAll); err != nil {
		return nil, fmt.Errorf("failed to schedule discovery cycle: %w", err)
	}

	return r, nil
}

// Start begins the discovery schedule
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running cycle to finish
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Refresher) refreshAll() {
	for _, session := range r.registry.Sessions() {
		if session.State() != mcpclient.StateReady {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := session.DiscoverCapabilities(ctx); err != nil {
			r.registry.logger.Warn().
				Err(err).
				Str("provider", session.ProviderID()).
				Msg("Scheduled discovery cycle failed")
		}
		cancel()
	}
}
