package worldsync

import (
	"sync"

	"go.uber.org/zap"

	scenebridge "github.com/wippyai/scene-bridge"
	"github.com/wippyai/scene-bridge/component"
	"github.com/wippyai/scene-bridge/crdt"
	"github.com/wippyai/scene-bridge/errors"
	"github.com/wippyai/scene-bridge/world"
)

// Syncer hands out command buffers, one per cycle.
type Syncer struct {
	pool sync.Pool
}

// NewSyncer creates a Syncer.
func NewSyncer() *Syncer {
	return &Syncer{
		pool: sync.Pool{New: func() any { return &CommandBuffer{} }},
	}
}

// GetSyncCommandBuffer returns an empty buffer for the current cycle.
func (s *Syncer) GetSyncCommandBuffer() *CommandBuffer {
	b := s.pool.Get().(*CommandBuffer)
	b.reset()
	return b
}

// Recycle returns a consumed buffer. The buffer must not be used afterwards.
func (s *Syncer) Recycle(b *CommandBuffer) {
	if b == nil {
		return
	}
	b.reset()
	s.pool.Put(b)
}

type bufferState uint8

const (
	stateStaging bufferState = iota
	stateFinalized
	stateConsumed
)

// CommandBuffer is an ordered, append-only list of staged world operations.
// It is owned by one goroutine at a time.
type CommandBuffer struct {
	cmds  []Command
	state bufferState
}

func (b *CommandBuffer) reset() {
	clear(b.cmds)
	b.cmds = b.cmds[:0]
	b.state = stateStaging
}

// Len returns the number of staged commands.
func (b *CommandBuffer) Len() int { return len(b.cmds) }

// Commands returns the staged commands. The slice is owned by the buffer.
func (b *CommandBuffer) Commands() []Command { return b.cmds }

// SyncCRDTMessage stages the world operation implied by a reconciliation
// effect. It reports whether anything was staged. Obsolete messages stage
// nothing.
func (b *CommandBuffer) SyncCRDTMessage(msg crdt.Message, effect crdt.Effect) (bool, error) {
	if b.state != stateStaging {
		return false, errors.InvalidInput(errors.PhaseStage, "buffer is no longer staging")
	}

	var op Op
	switch {
	case effect == crdt.EffectApplied && msg.Kind == crdt.KindPut:
		op = OpPut
	case effect == crdt.EffectApplied && msg.Kind == crdt.KindAppend:
		op = OpAppend
	case effect == crdt.EffectDeleted && msg.Kind == crdt.KindDelete:
		op = OpRemove
	case effect == crdt.EffectDeleted && msg.Kind == crdt.KindDeleteEntity:
		op = OpEntityDeleted
	default:
		return false, nil
	}

	b.cmds = append(b.cmds, Command{
		Payload:   msg.Payload,
		Entity:    msg.Entity,
		Component: msg.Component,
		Timestamp: msg.Timestamp,
		Op:        op,
	})
	return true, nil
}

// FinalizeAndDeserialize converts every staged payload into a component value.
// A command whose component is unknown or whose payload is malformed is
// reported and dropped; the others stay. It returns the number dropped.
// After it returns the buffer no longer references the decoded batch.
func (b *CommandBuffer) FinalizeAndDeserialize(reg *component.Registry, report func(error)) int {
	if b.state != stateStaging {
		return 0
	}
	b.state = stateFinalized

	dropped := 0
	n := 0
	for i := range b.cmds {
		cmd := b.cmds[i]
		if cmd.Op == OpPut || cmd.Op == OpAppend {
			v, err := deserialize(reg, cmd)
			if err != nil {
				dropped++
				if report != nil {
					report(err)
				}
				continue
			}
			cmd.Value = v
		}
		cmd.Payload = nil
		b.cmds[n] = cmd
		n++
	}
	clear(b.cmds[n:])
	b.cmds = b.cmds[:n]
	return dropped
}

func deserialize(reg *component.Registry, cmd Command) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseDeserialize, errors.KindPanic).
				Key(cmd.Key()).
				Value(r).
				Detail("codec panicked: %v", r).
				Build()
		}
	}()
	return reg.Deserialize(cmd.Key(), cmd.Payload)
}

type undoEntry struct {
	prev     any
	entities map[scenebridge.ComponentID]any
	key      scenebridge.Key
	change   Change
}

// Apply performs the staged operations on w in order. The caller must hold
// the world's single-writer lock. On the first failure or panic every
// reversible operation already applied in this call is rolled back and the
// error is returned with no commits.
//
// A buffer can be applied once.
func (b *CommandBuffer) Apply(w world.World) (committed []Committed, err error) {
	switch b.state {
	case stateStaging:
		return nil, errors.InvalidInput(errors.PhaseApply, "buffer not finalized")
	case stateConsumed:
		return nil, errors.InvalidInput(errors.PhaseApply, "buffer already applied")
	}
	b.state = stateConsumed

	var (
		undo    []undoEntry
		current scenebridge.Key
	)
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseApply, errors.KindPanic).
				Key(current).
				Value(r).
				Detail("world panicked: %v", r).
				Build()
		}
		if err == nil {
			return
		}
		committed = nil
		if rerr := rollback(w, undo); rerr != nil {
			err = errors.Join(err, rerr)
		}
		Logger().Debug("apply rolled back",
			zap.Int("undone", len(undo)),
			zap.Error(err))
	}()

	committed = make([]Committed, 0, len(b.cmds))
	for i := range b.cmds {
		cmd := &b.cmds[i]
		current = cmd.Key()

		entry := undoEntry{key: current}
		var cerr error
		switch cmd.Op {
		case OpPut:
			if prev, ok := w.Component(cmd.Entity, cmd.Component); ok {
				entry.prev = prev
				entry.change = ChangeUpdated
				cerr = w.UpdateComponent(cmd.Entity, cmd.Component, cmd.Value)
			} else {
				entry.change = ChangeAdded
				cerr = w.AddComponent(cmd.Entity, cmd.Component, cmd.Value)
			}
		case OpRemove:
			prev, ok := w.Component(cmd.Entity, cmd.Component)
			if !ok {
				continue
			}
			entry.prev = prev
			entry.change = ChangeRemoved
			cerr = w.RemoveComponent(cmd.Entity, cmd.Component)
		case OpEntityDeleted:
			entry.entities = w.EntityComponents(cmd.Entity)
			entry.change = ChangeEntityDeleted
			cerr = w.DeleteEntity(cmd.Entity)
		case OpAppend:
			entry.change = ChangeAppended
			cerr = w.AppendComponent(cmd.Entity, cmd.Component, cmd.Value)
		default:
			cerr = errors.InvalidInput(errors.PhaseApply, "unknown op "+cmd.Op.String())
		}
		if cerr != nil {
			return nil, errors.Apply(current, cerr)
		}
		if entry.change != ChangeAppended {
			undo = append(undo, entry)
		}

		c := Committed{
			Value:     cmd.Value,
			Entity:    cmd.Entity,
			Component: cmd.Component,
			Change:    entry.change,
			Origin:    OriginScript,
		}
		if entry.change == ChangeRemoved {
			c.Value = entry.prev
		}
		committed = append(committed, c)
	}
	return committed, nil
}

// rollback undoes entries in reverse order. It keeps going past failures.
func rollback(w world.World, undo []undoEntry) (err error) {
	var errs []error
	for i := len(undo) - 1; i >= 0; i-- {
		if rerr := undoOne(w, undo[i]); rerr != nil {
			errs = append(errs, rerr)
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errors.PhaseApply, errors.KindRejected, errors.Join(errs...), "rollback incomplete")
	}
	return nil
}

func undoOne(w world.World, u undoEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Panic(errors.PhaseApply, r)
		}
	}()
	e, c := u.key.Entity, u.key.Component
	switch u.change {
	case ChangeAdded:
		return w.RemoveComponent(e, c)
	case ChangeUpdated:
		return w.UpdateComponent(e, c, u.prev)
	case ChangeRemoved:
		return w.AddComponent(e, c, u.prev)
	case ChangeEntityDeleted:
		for comp, v := range u.entities {
			if aerr := w.AddComponent(e, comp, v); aerr != nil {
				return aerr
			}
		}
	}
	return nil
}
