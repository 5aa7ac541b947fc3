package gate

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/scene-bridge/errors"
	"github.com/wippyai/scene-bridge/world"
	"github.com/wippyai/scene-bridge/worldsync"
)

// Stats counts gate cycles.
type Stats struct {
	Opened   uint64
	Failures uint64
}

// Gate serializes buffer application with the host world's writers.
type Gate struct {
	mu       sync.Locker
	signalMu sync.Mutex
	opened   chan struct{}
	gen      uint64
	failures uint64
}

// New creates a gate bound to the world's single-writer lock.
func New(mu sync.Locker) *Gate {
	return &Gate{
		mu:     mu,
		opened: make(chan struct{}),
	}
}

// Apply applies buf to w while holding the world lock and then opens the
// gate. Failures, including panics, come back as apply-phase errors; the
// gate opens either way.
func (g *Gate) Apply(buf *worldsync.CommandBuffer, w world.World) (committed []worldsync.Committed, err error) {
	defer func() {
		g.open(err != nil)
	}()

	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			committed = nil
			err = errors.Panic(errors.PhaseApply, r)
		}
	}()

	committed, err = buf.Apply(w)
	if err != nil {
		Logger().Debug("apply failed", zap.Error(err))
	}
	return committed, err
}

func (g *Gate) open(failed bool) {
	g.signalMu.Lock()
	g.gen++
	if failed {
		g.failures++
	}
	close(g.opened)
	g.opened = make(chan struct{})
	gen := g.gen
	g.signalMu.Unlock()

	Logger().Debug("gate opened", zap.Uint64("generation", gen), zap.Bool("failed", failed))
}

// Generation returns how many times the gate has opened.
func (g *Gate) Generation() uint64 {
	g.signalMu.Lock()
	defer g.signalMu.Unlock()
	return g.gen
}

// Stats returns the gate counters.
func (g *Gate) Stats() Stats {
	g.signalMu.Lock()
	defer g.signalMu.Unlock()
	return Stats{Opened: g.gen, Failures: g.failures}
}

// Wait blocks until the generation exceeds after and returns it.
func (g *Gate) Wait(ctx context.Context, after uint64) (uint64, error) {
	for {
		g.signalMu.Lock()
		gen, ch := g.gen, g.opened
		g.signalMu.Unlock()
		if gen > after {
			return gen, nil
		}
		select {
		case <-ctx.Done():
			return gen, ctx.Err()
		case <-ch:
		}
	}
}

// Throttle lets a host system run at most once per opened cycle.
// A Throttle is not safe for concurrent use.
type Throttle struct {
	g    *Gate
	seen uint64
}

// NewThrottle creates a throttle that becomes ready at the next opening.
func (g *Gate) NewThrottle() *Throttle {
	return &Throttle{g: g, seen: g.Generation()}
}

// Ready reports whether the gate opened since the last true result.
func (t *Throttle) Ready() bool {
	gen := t.g.Generation()
	if gen > t.seen {
		t.seen = gen
		return true
	}
	return false
}
