package server

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/louisbranch/broadcast.space/internal/services/gateway/metrics"
)

// keepalive sweeps the hub on a fixed period. A connection that has not
// answered the previous ping is terminated; every other connection gets its
// flag cleared and a fresh ping.
type keepalive struct {
	hub      *hub
	clock    clock.Clock
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// start creates the ticker before returning so ticks issued right after the
// call are never missed. The returned channel closes once the loop exits.
func (k *keepalive) start(ctx context.Context) <-chan struct{} {
	ticker := k.clock.Ticker(k.interval)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				k.sweep()
			}
		}
	}()
	return done
}

func (k *keepalive) sweep() {
	for _, c := range k.hub.all() {
		if !c.alive.CompareAndSwap(true, false) {
			c.log.Info("keepalive timeout, terminating")
			k.metrics.KeepaliveTerminations.Inc()
			c.terminate()
			continue
		}
		if err := c.ping(); err != nil {
			c.log.Debug("ping failed", zap.Error(err))
		}
	}
}
