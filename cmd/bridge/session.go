package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"

	scenebridge "github.com/wippyai/scene-bridge"
	"github.com/wippyai/scene-bridge/bridge"
	"github.com/wippyai/scene-bridge/crdt"
	"github.com/wippyai/scene-bridge/journal"
	"github.com/wippyai/scene-bridge/observable"
	"github.com/wippyai/scene-bridge/scripthost"
	"github.com/wippyai/scene-bridge/world"
)

// session is one bridge over an in-memory world plus whatever drives it.
type session struct {
	cfg      SceneConfig
	world    *world.Memory
	bridge   *bridge.Bridge
	recorder *journal.Writer
	events   []observable.Event
	log      *zap.Logger
}

func newSession(cfg SceneConfig, recordPath string, log *zap.Logger) (*session, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, world: world.NewMemory(), log: log}
	opts := bridge.DefaultOptions()
	opts.MaxBatchBytes = cfg.MaxBatchBytes
	opts.Subscriptions = cfg.SubscriptionRegistry()
	opts.Reporter = bridge.NewLogReporter(log)
	if recordPath != "" {
		w, err := journal.Create(recordPath)
		if err != nil {
			return nil, err
		}
		s.recorder = w
		opts.Recorder = w
	}

	b, err := bridge.New(s.world, reg, opts)
	if err != nil {
		s.closeRecorder()
		return nil, err
	}
	s.bridge = b
	return s, nil
}

func (s *session) Close() {
	s.bridge.Dispose()
	s.closeRecorder()
}

func (s *session) closeRecorder() {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Close(); err != nil {
		s.log.Warn("close journal", zap.Error(err))
	}
	s.recorder = nil
}

// collectEvents moves derived events from the bridge into the session log.
func (s *session) collectEvents() []observable.Event {
	evs := s.bridge.Deriver().Drain()
	s.events = append(s.events, evs...)
	return evs
}

// stepResult describes one step of a replay or scene run.
type stepResult struct {
	label    string
	outgoing int
	mismatch bool
}

// stepper advances a session by one boundary call or scene tick.
type stepper interface {
	Step(ctx context.Context) (stepResult, error)
	Close(ctx context.Context) error
}

// replayStepper feeds journal records through the bridge.
type replayStepper struct {
	s      *session
	reader *journal.Reader
	verify bool
}

func newReplayStepper(s *session, path string, verify bool) (*replayStepper, error) {
	r, err := journal.Open(path)
	if err != nil {
		return nil, err
	}
	return &replayStepper{s: s, reader: r, verify: verify}, nil
}

func (r *replayStepper) Step(context.Context) (stepResult, error) {
	rec, err := r.reader.Next()
	if err != nil {
		return stepResult{}, err
	}

	var out []byte
	switch rec.Call {
	case bridge.CallSendToRenderer:
		out = r.s.bridge.SendToRenderer(rec.Request)
	case bridge.CallGetState:
		out = r.s.bridge.GetState()
	default:
		return stepResult{}, fmt.Errorf("record %d: unknown call %q", rec.Seq, rec.Call)
	}
	defer r.s.bridge.Release(out)
	r.s.collectEvents()

	res := stepResult{
		label:    fmt.Sprintf("#%d %s (%d bytes in)", rec.Seq, rec.Call, len(rec.Request)),
		outgoing: countMessages(out),
	}
	if r.verify && !bytes.Equal(out, rec.Response) {
		res.mismatch = true
	}
	return res, nil
}

func (r *replayStepper) Close(context.Context) error {
	return r.reader.Close()
}

// sceneStepper calls an exported scene function once per step.
type sceneStepper struct {
	s     *session
	host  *scripthost.Host
	scene *scripthost.Scene
	fn    string
	tick  int
}

func newSceneStepper(ctx context.Context, s *session, wasmPath, fn string) (*sceneStepper, error) {
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, err
	}
	host, err := scripthost.New(ctx, &scripthost.Config{
		MemoryLimitPages: s.cfg.MemoryLimitPages,
		EnableWASI:       s.cfg.WASI,
	})
	if err != nil {
		return nil, err
	}
	scene, err := host.Instantiate(ctx, s.cfg.Scene, wasm, s.bridge)
	if err != nil {
		_ = host.Close(ctx)
		return nil, err
	}
	return &sceneStepper{s: s, host: host, scene: scene, fn: fn}, nil
}

func (st *sceneStepper) Step(ctx context.Context) (stepResult, error) {
	st.tick++
	before := st.s.bridge.Stats()
	if _, err := st.scene.Call(ctx, st.fn); err != nil {
		return stepResult{}, err
	}
	st.s.collectEvents()
	after := st.s.bridge.Stats()
	return stepResult{
		label:    fmt.Sprintf("tick %d: %s", st.tick, st.fn),
		outgoing: int(after.Sent - before.Sent),
	}, nil
}

func (st *sceneStepper) Close(ctx context.Context) error {
	return st.host.Close(ctx)
}

func countMessages(data []byte) int {
	msgs, err := crdt.Decode(data, nil)
	if err != nil {
		return -1
	}
	return len(msgs)
}

// runSteps drives st to completion, or for at most limit steps when limit > 0.
func runSteps(ctx context.Context, st stepper, limit int, out io.Writer) (steps, mismatches int, err error) {
	for limit <= 0 || steps < limit {
		res, err := st.Step(ctx)
		if errors.Is(err, io.EOF) {
			return steps, mismatches, nil
		}
		if err != nil {
			return steps, mismatches, err
		}
		steps++
		if res.mismatch {
			mismatches++
			fmt.Fprintf(out, "%s: response differs from recording\n", res.label)
		}
	}
	return steps, mismatches, nil
}

// worldRow is one component in the host world.
type worldRow struct {
	value     any
	entity    scenebridge.EntityID
	component scenebridge.ComponentID
}

func (s *session) worldRows() []worldRow {
	s.world.Lock()
	defer s.world.Unlock()
	var rows []worldRow
	for _, e := range s.world.Entities() {
		comps := s.world.EntityComponents(e)
		ids := make([]scenebridge.ComponentID, 0, len(comps))
		for c := range comps {
			ids = append(ids, c)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, c := range ids {
			rows = append(rows, worldRow{entity: e, component: c, value: comps[c]})
		}
	}
	return rows
}

func (s *session) componentName(id scenebridge.ComponentID) string {
	if name := s.bridge.Registry().Name(id); name != "" {
		return name
	}
	return fmt.Sprintf("component#%d", id)
}

func formatValue(v any) string {
	var str string
	switch t := v.(type) {
	case []byte:
		str = fmt.Sprintf("%d bytes", len(t))
	case fmt.Stringer:
		str = t.String()
	default:
		str = fmt.Sprintf("%+v", v)
	}
	if len(str) > 60 {
		str = str[:57] + "..."
	}
	return str
}

func (s *session) printSummary(out io.Writer) {
	st := s.bridge.Stats()
	fmt.Fprintf(out, "cycles=%d faults=%d received=%d obsolete=%d dropped=%d sent=%d\n",
		st.Cycles, st.Faults, st.Received, st.Obsolete, st.Dropped, st.Sent)

	snap := s.bridge.Snapshot()
	fmt.Fprintf(out, "\nstate table (%d entries):\n", len(snap))
	for _, m := range snap {
		fmt.Fprintf(out, "  %-10s %-28s t=%-6d %d bytes\n",
			m.Entity, s.componentName(m.Component), m.Timestamp, len(m.Payload))
	}

	rows := s.worldRows()
	fmt.Fprintf(out, "\nworld (%d components):\n", len(rows))
	for _, r := range rows {
		fmt.Fprintf(out, "  %-10s %-28s %s\n", r.entity, s.componentName(r.component), formatValue(r.value))
	}

	if len(s.events) > 0 {
		fmt.Fprintf(out, "\nevents (%d):\n", len(s.events))
		for _, ev := range s.events {
			fmt.Fprintf(out, "  %-18s entity=%s address=%s\n", ev.ID, ev.Entity, ev.Address)
		}
	}
}
