package outgoing

import (
	"sync"

	scenebridge "github.com/wippyai/scene-bridge"
	"github.com/wippyai/scene-bridge/component"
	"github.com/wippyai/scene-bridge/crdt"
	"github.com/wippyai/scene-bridge/errors"
	"github.com/wippyai/scene-bridge/world"
	"github.com/wippyai/scene-bridge/worldsync"
)

// PendingMessage is a host write waiting for the next flush.
type PendingMessage struct {
	Value     any
	Entity    scenebridge.EntityID
	Component scenebridge.ComponentID
	Kind      crdt.Kind
}

func (p PendingMessage) key() scenebridge.Key {
	return scenebridge.Key{Entity: p.Entity, Component: p.Component}
}

type slot struct {
	msg  PendingMessage
	dead bool
}

// Collector accumulates PendingMessages. It is safe for concurrent use.
type Collector struct {
	slots  []slot
	latest map[scenebridge.Key]int
	live   int
	mu     sync.Mutex
}

var _ world.Observer = (*Collector)(nil)

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{latest: make(map[scenebridge.Key]int)}
}

// Put records a component write.
func (c *Collector) Put(entity scenebridge.EntityID, comp scenebridge.ComponentID, value any) {
	c.write(PendingMessage{Entity: entity, Component: comp, Kind: crdt.KindPut, Value: value})
}

// Delete records a component removal.
func (c *Collector) Delete(entity scenebridge.EntityID, comp scenebridge.ComponentID) {
	c.write(PendingMessage{Entity: entity, Component: comp, Kind: crdt.KindDelete})
}

// DeleteEntity records an entity deletion. It supersedes every pending write
// to the entity.
func (c *Collector) DeleteEntity(entity scenebridge.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, i := range c.latest {
		if k.Entity == entity {
			c.kill(i)
			delete(c.latest, k)
		}
	}
	c.push(PendingMessage{Entity: entity, Kind: crdt.KindDeleteEntity})
}

// Append records a transient value. Appends are kept in order and never
// coalesced.
func (c *Collector) Append(entity scenebridge.EntityID, comp scenebridge.ComponentID, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.push(PendingMessage{Entity: entity, Component: comp, Kind: crdt.KindAppend, Value: value})
}

// OnWorldEvent feeds host world changes into the collector.
func (c *Collector) OnWorldEvent(ev world.Event) {
	switch ev.Type {
	case world.EventSet:
		c.Put(ev.Entity, ev.Component, ev.Value)
	case world.EventRemoved:
		c.Delete(ev.Entity, ev.Component)
	case world.EventEntityDestroyed:
		c.DeleteEntity(ev.Entity)
	case world.EventAppended:
		c.Append(ev.Entity, ev.Component, ev.Value)
	}
}

// Len returns the number of messages the next flush would emit.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Pending returns a copy of the surviving messages in flush order.
func (c *Collector) Pending() []PendingMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return survivors(c.slots, make([]PendingMessage, 0, c.live))
}

// Reset discards every pending message.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = nil
	clear(c.latest)
	c.live = 0
}

func (c *Collector) write(p PendingMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := p.key()
	if i, ok := c.latest[k]; ok {
		c.kill(i)
	}
	c.latest[k] = len(c.slots)
	c.push(p)
}

func (c *Collector) push(p PendingMessage) {
	c.slots = append(c.slots, slot{msg: p})
	c.live++
}

func (c *Collector) kill(i int) {
	if !c.slots[i].dead {
		c.slots[i].dead = true
		c.slots[i].msg.Value = nil
		c.live--
	}
}

func (c *Collector) swap() []slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots := c.slots
	c.slots = nil
	clear(c.latest)
	c.live = 0
	return slots
}

func survivors(slots []slot, dst []PendingMessage) []PendingMessage {
	for _, s := range slots {
		if !s.dead {
			dst = append(dst, s.msg)
		}
	}
	return dst
}

// Flush drains the current window. Each surviving message is serialized
// through reg, stamped with the key's next timestamp, installed into state
// with EnforceLWWState, and handed to observe. Messages that cannot be
// serialized are dropped and reported in the returned error; the rest are
// still flushed.
//
// Writes to entities the state table already deleted are dropped.
func (c *Collector) Flush(state *crdt.State, reg *component.Registry, observe func(worldsync.Committed)) ([]crdt.ProcessedMessage, error) {
	pending := survivors(c.swap(), nil)
	if len(pending) == 0 {
		return nil, nil
	}

	out := make([]crdt.ProcessedMessage, 0, len(pending))
	var errs []error
	for _, p := range pending {
		if state.IsEntityDeleted(p.Entity) {
			continue
		}

		msg := crdt.Message{
			Entity:    p.Entity,
			Component: p.Component,
			Kind:      p.Kind,
		}
		commit := worldsync.Committed{
			Value:     p.Value,
			Entity:    p.Entity,
			Component: p.Component,
			Origin:    worldsync.OriginHost,
		}
		effect := crdt.EffectApplied

		switch p.Kind {
		case crdt.KindPut, crdt.KindAppend:
			payload, err := reg.Serialize(p.key(), p.Value)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			ts, ok := state.NextTimestamp(p.Entity, p.Component)
			if !ok {
				errs = append(errs, errors.ClockExhausted(p.key()))
				continue
			}
			msg.Payload = payload
			msg.Timestamp = ts
			commit.Change = worldsync.ChangeAppended
			if p.Kind == crdt.KindPut {
				commit.Change = worldsync.ChangeAdded
				if _, _, ok := state.Get(p.Entity, p.Component); ok {
					commit.Change = worldsync.ChangeUpdated
				}
			}
		case crdt.KindDelete:
			ts, ok := state.NextTimestamp(p.Entity, p.Component)
			if !ok {
				errs = append(errs, errors.ClockExhausted(p.key()))
				continue
			}
			msg.Timestamp = ts
			commit.Change = worldsync.ChangeRemoved
			effect = crdt.EffectDeleted
		case crdt.KindDeleteEntity:
			commit.Change = worldsync.ChangeEntityDeleted
			effect = crdt.EffectDeleted
		default:
			errs = append(errs, errors.InvalidInput(errors.PhaseSerialize, "unknown pending kind "+p.Kind.String()))
			continue
		}

		state.EnforceLWWState(msg)
		if observe != nil {
			observe(commit)
		}
		out = append(out, crdt.ProcessedMessage{Message: msg, Effect: effect})
	}

	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}
