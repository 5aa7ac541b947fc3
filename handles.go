package scenebridge

import "fmt"

// EntityID is an opaque entity handle shared with the script runtime.
// The low 16 bits carry the entity number and the high 16 bits its version,
// so a recycled number always produces a different handle.
type EntityID uint32

// NewEntityID builds a handle from an entity number and version.
func NewEntityID(number, version uint16) EntityID {
	return EntityID(uint32(version)<<16 | uint32(number))
}

// Number returns the entity number.
func (e EntityID) Number() uint16 {
	return uint16(e)
}

// Version returns the entity version.
func (e EntityID) Version() uint16 {
	return uint16(e >> 16)
}

func (e EntityID) String() string {
	return fmt.Sprintf("%d:%d", e.Number(), e.Version())
}

// ComponentID identifies a component schema.
type ComponentID uint32

// Key addresses one LWW register.
type Key struct {
	Entity    EntityID
	Component ComponentID
}

// Less orders keys by entity, then component.
func (k Key) Less(o Key) bool {
	if k.Entity != o.Entity {
		return k.Entity < o.Entity
	}
	return k.Component < o.Component
}
