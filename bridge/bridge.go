package bridge

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/scene-bridge/component"
	"github.com/wippyai/scene-bridge/crdt"
	"github.com/wippyai/scene-bridge/errors"
	"github.com/wippyai/scene-bridge/gate"
	"github.com/wippyai/scene-bridge/internal/bufpool"
	"github.com/wippyai/scene-bridge/observable"
	"github.com/wippyai/scene-bridge/outgoing"
	"github.com/wippyai/scene-bridge/world"
	"github.com/wippyai/scene-bridge/worldsync"
)

// CycleState is the bridge's position in the synchronization cycle.
type CycleState int32

const (
	StateIdle CycleState = iota
	StateDecoding
	StateReconciling
	StateStaging
	StateApplying
	StateFaulted
	StateDisposed
)

func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDecoding:
		return "decoding"
	case StateReconciling:
		return "reconciling"
	case StateStaging:
		return "staging"
	case StateApplying:
		return "applying"
	case StateFaulted:
		return "faulted"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Stats are cumulative counters for one bridge.
type Stats struct {
	Cycles      uint64
	Faults      uint64
	Received    uint64
	Obsolete    uint64
	Dropped     uint64
	Sent        uint64
	StateCalls  uint64
	LastStaged  int
	LastApplied int
}

// observerWorld is implemented by worlds that report host writes.
type observerWorld interface {
	Subscribe(world.Observer) (unsubscribe func())
}

// Bridge connects one script runtime session to a host world.
type Bridge struct {
	world     world.World
	registry  *component.Registry
	state     *crdt.State
	syncer    *worldsync.Syncer
	gate      *gate.Gate
	collector *outgoing.Collector
	deriver   *observable.Deriver
	pool      *bufpool.Pool
	reporter  Reporter
	recorder  Recorder
	unobserve func()

	// reused per cycle, guarded by callMu
	msgs      []crdt.Message
	processed []crdt.ProcessedMessage
	snapshot  []crdt.ProcessedMessage

	stats     Stats
	maxBatch  int
	cycle     atomic.Int32
	disposing atomic.Bool
	callMu    sync.Mutex
	statsMu   sync.Mutex
	dispose   sync.Once
}

// New creates a bridge over w. reg must hold codecs for every component the
// script may send, including the well-known ones.
func New(w world.World, reg *component.Registry, opts Options) (*Bridge, error) {
	if w == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "nil world")
	}
	if reg == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "nil component registry")
	}

	locker := opts.Locker
	if locker == nil {
		l, ok := w.(sync.Locker)
		if !ok {
			return nil, errors.InvalidInput(errors.PhaseConfig, "world has no lock and Options.Locker is nil")
		}
		locker = l
	}

	subs := opts.Subscriptions
	if subs == nil {
		subs = observable.NewRegistry(observable.AllEvents...)
	}
	deriver, err := observable.New(subs, reg)
	if err != nil {
		return nil, err
	}

	reporter := opts.Reporter
	if reporter == nil {
		reporter = NewLogReporter(Logger())
	}

	b := &Bridge{
		world:     w,
		registry:  reg,
		state:     crdt.NewState(),
		syncer:    worldsync.NewSyncer(),
		gate:      gate.New(locker),
		collector: outgoing.NewCollector(),
		deriver:   deriver,
		pool:      bufpool.New(),
		reporter:  reporter,
		recorder:  opts.Recorder,
		maxBatch:  opts.MaxBatchBytes,
	}

	if ow, ok := w.(observerWorld); ok && opts.ObserveWorld {
		b.unobserve = ow.Subscribe(b.collector)
	}

	Logger().Debug("bridge created",
		zap.Int("components", len(reg.IDs())),
		zap.Bool("observe_world", b.unobserve != nil))
	return b, nil
}

// SendToRenderer runs one synchronization cycle for an incoming batch and
// returns the encoded host-originated changes. The result may be handed back
// with Release once the caller is done with it.
func (b *Bridge) SendToRenderer(data []byte) []byte {
	if b.disposing.Load() {
		return nil
	}
	b.callMu.Lock()
	defer b.callMu.Unlock()
	if b.disposing.Load() {
		return nil
	}

	out := b.guard(func() []byte { return b.runCycle(data) })
	b.record(CallSendToRenderer, data, out)
	return out
}

// GetState flushes pending host writes and returns the whole state table
// encoded as PUT messages.
func (b *Bridge) GetState() []byte {
	if b.disposing.Load() {
		return nil
	}
	b.callMu.Lock()
	defer b.callMu.Unlock()
	if b.disposing.Load() {
		return nil
	}

	out := b.guard(func() []byte {
		b.flush()
		b.snapshot = b.state.CreateMessagesFromCurrentState(b.snapshot[:0])
		out := b.encode(b.snapshot)
		clear(b.snapshot)
		b.statsMu.Lock()
		b.stats.StateCalls++
		b.statsMu.Unlock()
		return out
	})
	b.record(CallGetState, nil, out)
	return out
}

// guard turns a panic in fn into a fault and an empty result.
func (b *Bridge) guard(fn func() []byte) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			b.fault(CategoryPanic, errors.Panic(errors.PhaseHost, r))
		}
	}()
	return fn()
}

func (b *Bridge) runCycle(data []byte) []byte {
	b.statsMu.Lock()
	b.stats.Cycles++
	b.statsMu.Unlock()

	b.setState(StateDecoding)
	if b.maxBatch > 0 && len(data) > b.maxBatch {
		b.fault(CategoryParse, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Detail("batch of %d bytes exceeds limit %d", len(data), b.maxBatch).
			Build())
		return nil
	}
	msgs, err := crdt.Decode(data, b.msgs[:0])
	b.msgs = msgs
	defer clear(b.msgs)
	if err != nil {
		b.fault(CategoryParse, err)
		return nil
	}

	b.setState(StateReconciling)
	b.processed = b.processed[:0]
	obsolete := 0
	for _, m := range msgs {
		effect := b.state.ProcessMessage(m)
		if effect == crdt.EffectObsoleteIgnored {
			obsolete++
		}
		b.processed = append(b.processed, crdt.ProcessedMessage{Message: m, Effect: effect})
	}
	defer clear(b.processed)

	b.setState(StateStaging)
	buf := b.syncer.GetSyncCommandBuffer()
	defer b.syncer.Recycle(buf)
	for _, pm := range b.processed {
		if _, err := buf.SyncCRDTMessage(pm.Message, pm.Effect); err != nil {
			b.report(CategoryStage, err)
		}
	}
	dropped := buf.FinalizeAndDeserialize(b.registry, func(err error) {
		b.report(CategoryDeserialize, err)
	})
	staged := buf.Len()

	b.setState(StateApplying)
	committed, applyErr := b.gate.Apply(buf, b.world)
	for _, c := range committed {
		b.deriver.Observe(c)
	}

	b.statsMu.Lock()
	b.stats.Received += uint64(len(msgs))
	b.stats.Obsolete += uint64(obsolete)
	b.stats.Dropped += uint64(dropped)
	b.stats.LastStaged = staged
	b.stats.LastApplied = len(committed)
	b.statsMu.Unlock()

	out := b.encode(b.flush())

	if applyErr != nil {
		b.fault(CategoryApply, applyErr)
		return out
	}
	b.setState(StateIdle)
	return out
}

// flush drains the collector into the state table and returns what the
// script has not seen yet.
func (b *Bridge) flush() []crdt.ProcessedMessage {
	msgs, err := b.collector.Flush(b.state, b.registry, b.deriver.Observe)
	if err != nil {
		b.report(CategorySerialize, err)
	}
	b.statsMu.Lock()
	b.stats.Sent += uint64(len(msgs))
	b.statsMu.Unlock()
	return msgs
}

func (b *Bridge) encode(msgs []crdt.ProcessedMessage) []byte {
	n := crdt.EncodedSize(msgs)
	if n == 0 {
		return nil
	}
	buf := b.pool.Get(n)
	if _, err := crdt.EncodeTo(buf, msgs); err != nil {
		b.pool.Put(buf)
		b.report(CategoryEncode, err)
		return nil
	}
	return buf
}

func (b *Bridge) record(call string, request, response []byte) {
	if b.recorder == nil {
		return
	}
	if err := b.recorder.Record(call, request, response); err != nil {
		b.report(CategoryJournal, err)
	}
}

func (b *Bridge) fault(category string, err error) {
	b.setState(StateFaulted)
	b.statsMu.Lock()
	b.stats.Faults++
	b.statsMu.Unlock()
	b.report(category, err)
}

func (b *Bridge) report(category string, err error) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("reporter panicked", zap.Any("panic", r), zap.String("category", category))
		}
	}()
	b.reporter.Report(category, err)
}

func (b *Bridge) setState(s CycleState) {
	b.cycle.Store(int32(s))
}

// Release returns a result buffer to the bridge's pool. The buffer must not
// be used afterwards.
func (b *Bridge) Release(buf []byte) {
	b.pool.Put(buf)
}

// Dispose tears the session down. It waits for an in-flight call to finish.
// Every call made afterwards returns an empty result.
func (b *Bridge) Dispose() {
	b.dispose.Do(func() {
		b.disposing.Store(true)
		b.callMu.Lock()
		defer b.callMu.Unlock()

		if b.unobserve != nil {
			b.unobserve()
		}
		b.state.Clear()
		b.collector.Reset()
		b.deriver.Reset()
		b.msgs = nil
		b.processed = nil
		b.snapshot = nil
		b.setState(StateDisposed)
		Logger().Debug("bridge disposed")
	})
}

// Disposed reports whether Dispose was called.
func (b *Bridge) Disposed() bool {
	return b.disposing.Load()
}

// State returns the current cycle state. Safe from any goroutine.
func (b *Bridge) State() CycleState {
	return CycleState(b.cycle.Load())
}

// Stats returns a copy of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.stats
}

// Snapshot returns a copy of every live state table entry, ordered by entity
// then component. It waits for an in-flight call.
func (b *Bridge) Snapshot() []crdt.ProcessedMessage {
	b.callMu.Lock()
	defer b.callMu.Unlock()
	msgs := b.state.CreateMessagesFromCurrentState(nil)
	for i := range msgs {
		msgs[i].Payload = append([]byte(nil), msgs[i].Payload...)
	}
	return msgs
}

// Collector returns the outgoing collector host systems write into.
func (b *Bridge) Collector() *outgoing.Collector { return b.collector }

// Deriver returns the observable event deriver.
func (b *Bridge) Deriver() *observable.Deriver { return b.deriver }

// Gate returns the gate host systems throttle on.
func (b *Bridge) Gate() *gate.Gate { return b.gate }

// Registry returns the component registry.
func (b *Bridge) Registry() *component.Registry { return b.registry }
