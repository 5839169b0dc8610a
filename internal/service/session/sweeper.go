package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-relay/internal/metrics"
)

// Sweeper runs the periodic expiry pass over a Store in the background.
type Sweeper struct {
	store    *Store
	interval time.Duration
	log      logrus.FieldLogger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper builds a sweeper for store that fires every interval.
func NewSweeper(store *Store, interval time.Duration, log logrus.FieldLogger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log,
	}
}

// Start launches the sweep loop. It returns immediately; the loop exits
// when ctx is cancelled or Stop is called.
func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)
	sw.done = make(chan struct{})
	go sw.run(ctx)
}

func (sw *Sweeper) run(ctx context.Context) {
	defer close(sw.done)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := sw.store.SweepExpired()
			metrics.SessionsSweptTotal.Add(float64(removed))
			sw.log.WithField("removed", removed).Info("session sweep finished")
		}
	}
}

// Stop halts the sweep loop and waits for it to wind down. Calling Stop
// on a sweeper that never started is a no-op.
func (sw *Sweeper) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
}
