package crdt

import (
	"sort"

	scenebridge "github.com/wippyai/scene-bridge"
)

type entry struct {
	payload   []byte
	timestamp uint32
	deleted   bool
}

// State is the LWW state table for one scene session.
type State struct {
	entities        map[scenebridge.EntityID]map[scenebridge.ComponentID]*entry
	deletedEntities map[scenebridge.EntityID]struct{}
	live            int
}

// NewState creates an empty state table.
func NewState() *State {
	return &State{
		entities:        make(map[scenebridge.EntityID]map[scenebridge.ComponentID]*entry),
		deletedEntities: make(map[scenebridge.EntityID]struct{}),
	}
}

// ProcessMessage reconciles msg against the table and reports its effect.
// The table copies accepted payloads, so msg.Payload may alias a transient
// buffer.
func (s *State) ProcessMessage(msg Message) Effect {
	if _, gone := s.deletedEntities[msg.Entity]; gone {
		return EffectObsoleteIgnored
	}

	switch msg.Kind {
	case KindAppend:
		return EffectApplied
	case KindDeleteEntity:
		s.deleteEntity(msg.Entity)
		return EffectDeleted
	case KindPut, KindDelete:
		if msg.Timestamp == MaxTimestamp {
			return EffectObsoleteIgnored
		}
		if e := s.lookup(msg.Entity, msg.Component); e != nil && msg.Timestamp <= e.timestamp {
			return EffectObsoleteIgnored
		}
		return s.store(msg)
	default:
		return EffectObsoleteIgnored
	}
}

// EnforceLWWState installs msg as the canonical value for its key without
// comparing timestamps. It is used for host-authored writes, which must
// never be rejected by their own bookkeeping. APPEND messages are not stored.
func (s *State) EnforceLWWState(msg Message) {
	switch msg.Kind {
	case KindPut, KindDelete:
		s.store(msg)
	case KindDeleteEntity:
		s.deleteEntity(msg.Entity)
	}
}

func (s *State) store(msg Message) Effect {
	comps := s.entities[msg.Entity]
	if comps == nil {
		comps = make(map[scenebridge.ComponentID]*entry)
		s.entities[msg.Entity] = comps
	}
	e := comps[msg.Component]
	if e == nil {
		e = &entry{deleted: true}
		comps[msg.Component] = e
	}

	wasLive := !e.deleted
	e.timestamp = msg.Timestamp

	if msg.Kind == KindDelete {
		e.payload = nil
		e.deleted = true
		if wasLive {
			s.live--
		}
		return EffectDeleted
	}

	e.payload = append(e.payload[:0:0], msg.Payload...)
	e.deleted = false
	if !wasLive {
		s.live++
	}
	return EffectApplied
}

func (s *State) deleteEntity(entity scenebridge.EntityID) {
	for _, e := range s.entities[entity] {
		if !e.deleted {
			s.live--
		}
	}
	delete(s.entities, entity)
	s.deletedEntities[entity] = struct{}{}
}

func (s *State) lookup(entity scenebridge.EntityID, component scenebridge.ComponentID) *entry {
	comps := s.entities[entity]
	if comps == nil {
		return nil
	}
	return comps[component]
}

// Get returns the live payload and timestamp stored for a key.
func (s *State) Get(entity scenebridge.EntityID, component scenebridge.ComponentID) ([]byte, uint32, bool) {
	e := s.lookup(entity, component)
	if e == nil || e.deleted {
		return nil, 0, false
	}
	return e.payload, e.timestamp, true
}

// Timestamp returns the last accepted timestamp for a key, tombstones included.
func (s *State) Timestamp(entity scenebridge.EntityID, component scenebridge.ComponentID) (uint32, bool) {
	e := s.lookup(entity, component)
	if e == nil {
		return 0, false
	}
	return e.timestamp, true
}

// NextTimestamp returns the timestamp a new local write to the key must carry
// to dominate everything the table has seen for it. ok is false once the key
// holds MaxTimestamp and no later timestamp exists.
func (s *State) NextTimestamp(entity scenebridge.EntityID, component scenebridge.ComponentID) (ts uint32, ok bool) {
	ts, _ = s.Timestamp(entity, component)
	if ts == MaxTimestamp {
		return 0, false
	}
	return ts + 1, true
}

// IsEntityDeleted reports whether the entity handle was deleted this session.
func (s *State) IsEntityDeleted(entity scenebridge.EntityID) bool {
	_, ok := s.deletedEntities[entity]
	return ok
}

// GetMessagesCount returns the number of live keys, which is the number of
// messages CreateMessagesFromCurrentState produces.
func (s *State) GetMessagesCount() int {
	return s.live
}

// CreateMessagesFromCurrentState appends one PUT per live key to dst, ordered
// by entity then component. Payloads alias the table.
func (s *State) CreateMessagesFromCurrentState(dst []ProcessedMessage) []ProcessedMessage {
	keys := make([]scenebridge.Key, 0, s.live)
	for entity, comps := range s.entities {
		for component, e := range comps {
			if !e.deleted {
				keys = append(keys, scenebridge.Key{Entity: entity, Component: component})
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, k := range keys {
		e := s.entities[k.Entity][k.Component]
		dst = append(dst, ProcessedMessage{
			Message: Message{
				Entity:    k.Entity,
				Component: k.Component,
				Timestamp: e.timestamp,
				Kind:      KindPut,
				Payload:   e.payload,
			},
			Effect: EffectApplied,
		})
	}
	return dst
}

// Clear drops every entry. Called on session teardown.
func (s *State) Clear() {
	clear(s.entities)
	clear(s.deletedEntities)
	s.live = 0
}
