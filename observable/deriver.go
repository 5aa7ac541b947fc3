package observable

import (
	"fmt"
	"sync"
	"sync/atomic"

	scenebridge "github.com/wippyai/scene-bridge"
	"github.com/wippyai/scene-bridge/component"
	"github.com/wippyai/scene-bridge/errors"
	"github.com/wippyai/scene-bridge/worldsync"
)

type handlerFunc func(d *Deriver, c worldsync.Committed)

type route struct {
	handle handlerFunc
	emits  []EventID
}

// routes maps each watched component to its handler.
var routes = map[scenebridge.ComponentID]route{
	component.IDPlayerIdentityData: {handle: (*Deriver).onIdentity, emits: []EventID{EventEnterScene, EventLeaveScene}},
	component.IDAvatarBase:         {handle: (*Deriver).onAvatarBase, emits: []EventID{EventProfileChanged}},
	component.IDAvatarEmoteCommand: {handle: (*Deriver).onEmote, emits: []EventID{EventPlayerExpression}},
	component.IDRealmInfo:          {handle: (*Deriver).onRealmInfo, emits: []EventID{EventRealmChanged}},
	component.IDEngineInfo:         {handle: (*Deriver).onEngineInfo, emits: []EventID{EventSceneReady}},
}

// validateRoutes checks that every event is produced by some route, that no
// handler is nil, and that reg can decode every routed component.
func validateRoutes(table map[scenebridge.ComponentID]route, reg *component.Registry) error {
	produced := make(map[EventID]bool, len(AllEvents))
	for id, r := range table {
		if r.handle == nil {
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("component %d has no handler", id))
		}
		if reg != nil && !reg.Has(id) {
			return errors.NotFound(errors.PhaseConfig, "component codec", fmt.Sprint(id))
		}
		for _, ev := range r.emits {
			produced[ev] = true
		}
	}
	for _, ev := range AllEvents {
		if !produced[ev] {
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("event %s has no route", ev))
		}
	}
	return nil
}

type identityIndex map[scenebridge.EntityID]Identity

// Deriver turns committed writes into events.
type Deriver struct {
	subs       Subscriptions
	identities atomic.Pointer[identityIndex]
	events     []Event
	ready      bool
	mu         sync.Mutex
}

// New creates a Deriver. reg, when not nil, must have codecs for every
// component the Deriver watches.
func New(subs Subscriptions, reg *component.Registry) (*Deriver, error) {
	if subs == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "nil subscriptions")
	}
	if err := validateRoutes(routes, reg); err != nil {
		return nil, err
	}
	d := &Deriver{subs: subs}
	d.identities.Store(&identityIndex{})
	return d, nil
}

// Observe consumes one committed write. Calls must not overlap.
func (d *Deriver) Observe(c worldsync.Committed) {
	if c.Change == worldsync.ChangeEntityDeleted {
		d.leave(c.Entity)
		return
	}
	if r, ok := routes[c.Component]; ok {
		r.handle(d, c)
	}
}

// Identity returns the identity bound to entity. Safe from any goroutine.
func (d *Deriver) Identity(entity scenebridge.EntityID) (Identity, bool) {
	id, ok := (*d.identities.Load())[entity]
	return id, ok
}

// Identities returns the current index. The map must not be modified.
func (d *Deriver) Identities() map[scenebridge.EntityID]Identity {
	return *d.identities.Load()
}

// Ready reports whether the scene-ready event has fired this session.
func (d *Deriver) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// Drain returns and clears the recorded events.
func (d *Deriver) Drain() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.events
	d.events = nil
	return out
}

// Reset starts a new session: identities, pending events, and the one-shot
// ready flag are cleared.
func (d *Deriver) Reset() {
	d.identities.Store(&identityIndex{})
	d.mu.Lock()
	d.events = nil
	d.ready = false
	d.mu.Unlock()
}

func (d *Deriver) emit(ev Event) {
	if !d.subs.Subscribed(ev.ID) {
		return
	}
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
}

// setIdentity swaps in a copy of the index with entity bound to id.
func (d *Deriver) setIdentity(entity scenebridge.EntityID, id Identity) (prev Identity, existed bool) {
	cur := *d.identities.Load()
	prev, existed = cur[entity]
	next := make(identityIndex, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[entity] = id
	d.identities.Store(&next)
	return prev, existed
}

func (d *Deriver) removeIdentity(entity scenebridge.EntityID) (Identity, bool) {
	cur := *d.identities.Load()
	prev, ok := cur[entity]
	if !ok {
		return Identity{}, false
	}
	next := make(identityIndex, len(cur))
	for k, v := range cur {
		if k != entity {
			next[k] = v
		}
	}
	d.identities.Store(&next)
	return prev, true
}

func (d *Deriver) leave(entity scenebridge.EntityID) {
	if prev, ok := d.removeIdentity(entity); ok {
		d.emit(Event{ID: EventLeaveScene, Entity: entity, Address: prev.Address, Data: prev})
	}
}

func (d *Deriver) onIdentity(c worldsync.Committed) {
	switch c.Change {
	case worldsync.ChangeAdded, worldsync.ChangeUpdated:
		v, ok := valueAs[component.PlayerIdentityData](c.Value)
		if !ok {
			return
		}
		id := Identity{Address: v.Address, IsGuest: v.IsGuest}
		prev, existed := d.setIdentity(c.Entity, id)
		if existed && prev.Address == id.Address {
			return
		}
		if existed {
			d.emit(Event{ID: EventLeaveScene, Entity: c.Entity, Address: prev.Address, Data: prev})
		}
		d.emit(Event{ID: EventEnterScene, Entity: c.Entity, Address: id.Address, Data: id})
	case worldsync.ChangeRemoved:
		d.leave(c.Entity)
	}
}

func (d *Deriver) onAvatarBase(c worldsync.Committed) {
	if c.Change != worldsync.ChangeAdded && c.Change != worldsync.ChangeUpdated {
		return
	}
	v, ok := valueAs[component.AvatarBase](c.Value)
	if !ok {
		return
	}
	id, known := d.Identity(c.Entity)
	if !known {
		return
	}
	d.emit(Event{ID: EventProfileChanged, Entity: c.Entity, Address: id.Address, Data: v})
}

func (d *Deriver) onEmote(c worldsync.Committed) {
	if c.Change == worldsync.ChangeRemoved {
		return
	}
	v, ok := valueAs[component.AvatarEmoteCommand](c.Value)
	if !ok {
		return
	}
	id, _ := d.Identity(c.Entity)
	d.emit(Event{ID: EventPlayerExpression, Entity: c.Entity, Address: id.Address, Data: v})
}

func (d *Deriver) onRealmInfo(c worldsync.Committed) {
	if c.Change != worldsync.ChangeAdded && c.Change != worldsync.ChangeUpdated {
		return
	}
	v, ok := valueAs[component.RealmInfo](c.Value)
	if !ok {
		return
	}
	d.emit(Event{ID: EventRealmChanged, Entity: c.Entity, Data: v})
}

// onEngineInfo fires the one-shot ready event. The flag is set even when
// nobody is subscribed, so a late subscriber never sees a stale ready.
func (d *Deriver) onEngineInfo(c worldsync.Committed) {
	if c.Change != worldsync.ChangeAdded && c.Change != worldsync.ChangeUpdated {
		return
	}
	d.mu.Lock()
	fired := d.ready
	d.ready = true
	d.mu.Unlock()
	if fired {
		return
	}
	d.emit(Event{ID: EventSceneReady, Entity: c.Entity, Data: c.Value})
}
