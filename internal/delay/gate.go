// Package delay implements the randomized, signal-interruptible startup
// delay that precedes a supervised launch.
package delay

import (
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/Custodia/pkg/logger"
)

// Gate sleeps a uniformly random duration in [0, max) before the child is
// launched. The sleep is cancellable through an internal token that a
// designated OS signal (or Abort) sets.
//
// Limitation: two engine instances in one process must not share the same
// abort signal; each Gate subscribes independently and the first to be
// aborted by a shared signal is unspecified.
type Gate struct {
	max time.Duration
	sig os.Signal

	aborted   atomic.Bool
	abortCh   chan struct{}
	abortOnce sync.Once
}

// NewGate creates a Gate with the given maximum delay. abortSignal may be
// nil, in which case only Abort can interrupt the sleep.
func NewGate(max time.Duration, abortSignal os.Signal) *Gate {
	return &Gate{
		max:     max,
		sig:     abortSignal,
		abortCh: make(chan struct{}),
	}
}

// Abort sets the cancellation token. Safe to call at any time, from any
// goroutine, more than once.
func (g *Gate) Abort() {
	g.aborted.Store(true)
	g.abortOnce.Do(func() { close(g.abortCh) })
}

// Aborted reports whether the token has been set.
func (g *Gate) Aborted() bool {
	return g.aborted.Load()
}

// Wait performs the delay and returns the duration actually slept. A zero
// maximum returns immediately. The abort subscription is armed before the
// random duration is drawn, so a signal arriving early still skips the
// delay; the subscription is detached before Wait returns.
func (g *Gate) Wait() time.Duration {
	if g.max <= 0 {
		return 0
	}

	if g.sig != nil {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, g.sig)
		defer func() {
			signal.Stop(sigCh)
			close(sigCh)
		}()
		go func() {
			if _, ok := <-sigCh; ok {
				logger.Log.Info("Delay: abort signal received")
				g.Abort()
			}
		}()
	}

	if g.aborted.Load() {
		logger.Log.Info("Delay: skipped, already aborted")
		return 0
	}

	d := time.Duration(rand.Int63n(int64(g.max)))
	logger.Log.Info("Delay: sleeping before launch", "duration", d.String(), "max", g.max.String())

	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-g.abortCh:
		logger.Log.Info("Delay: interrupted", "slept", time.Since(start).String())
	}
	return time.Since(start)
}
