package registry

import (
	"time"

	"github.com/ramsred/agentic-platform-mcp/internal/metrics"
)

// scheduleReconnect runs in its own goroutine per transport loss. Background
// reconnect attempts use exponential backoff with a cap; the session becomes
// ready again transparently to callers queued behind it. One provider's
// backoff never blocks another provider's invocations.
func (r *Registry) scheduleReconnect(providerID string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	session, okS := r.sessions[providerID]
	cfg, okC := r.configs[providerID]
	if !okS || !okC {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		backoff := r.reconnectInitial
		for attempt := 1; ; attempt++ {
			select {
			case <-r.baseCtx.Done():
				return
			case <-time.After(backoff):
			}

			err := r.connect(r.baseCtx, session, cfg)
			if err == nil {
				metrics.Default().ReconnectsTotal.WithLabelValues(providerID, "success").Inc()
				r.logger.Info().
					Str("provider", providerID).
					Int("attempt", attempt).
					Msg("Session reconnected")
				return
			}

			metrics.Default().ReconnectsTotal.WithLabelValues(providerID, "failure").Inc()
			r.logger.Warn().
				Err(err).
				Str("provider", providerID).
				Int("attempt", attempt).
				Dur("next_backoff", backoff).
				Msg("Reconnect attempt failed")

			backoff *= 2
			if backoff > r.reconnectCap {
				backoff = r.reconnectCap
			}
		}
	}()
}
