package worldsync

import (
	scenebridge "github.com/wippyai/scene-bridge"
)

// Op is a staged world operation.
type Op uint8

const (
	// OpPut becomes AddComponent or UpdateComponent depending on whether the
	// world holds the component when the buffer is applied.
	OpPut Op = iota + 1
	OpRemove
	OpEntityDeleted
	OpAppend
)

func (o Op) String() string {
	switch o {
	case OpPut:
		return "put"
	case OpRemove:
		return "remove"
	case OpEntityDeleted:
		return "entity_deleted"
	case OpAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Command is one staged operation.
type Command struct {
	// Value is the deserialized component value, set by FinalizeAndDeserialize.
	Value any
	// Payload holds the raw bytes until FinalizeAndDeserialize. It may alias
	// the decoded batch.
	Payload   []byte
	Entity    scenebridge.EntityID
	Component scenebridge.ComponentID
	Timestamp uint32
	Op        Op
}

// Key returns the command's (entity, component) pair.
func (c Command) Key() scenebridge.Key {
	return scenebridge.Key{Entity: c.Entity, Component: c.Component}
}

// Change is what a committed command did to the world.
type Change uint8

const (
	ChangeAdded Change = iota + 1
	ChangeUpdated
	ChangeRemoved
	ChangeEntityDeleted
	ChangeAppended
)

func (c Change) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	case ChangeEntityDeleted:
		return "entity_deleted"
	case ChangeAppended:
		return "appended"
	default:
		return "unknown"
	}
}

// Origin tells which side authored a committed write.
type Origin uint8

const (
	OriginScript Origin = iota
	OriginHost
)

func (o Origin) String() string {
	if o == OriginHost {
		return "host"
	}
	return "script"
}

// Committed is a write that reached the world, or for host-originated writes,
// the state table. The observable deriver consumes these.
type Committed struct {
	Value     any
	Entity    scenebridge.EntityID
	Component scenebridge.ComponentID
	Change    Change
	Origin    Origin
}

// Key returns the committed write's (entity, component) pair.
func (c Committed) Key() scenebridge.Key {
	return scenebridge.Key{Entity: c.Entity, Component: c.Component}
}
