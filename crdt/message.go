package crdt

import (
	"bytes"
	"fmt"

	scenebridge "github.com/wippyai/scene-bridge"
)

// Kind is the message operation.
type Kind uint8

const (
	KindPut          Kind = 1
	KindDelete       Kind = 2
	KindDeleteEntity Kind = 3
	KindAppend       Kind = 4
)

// MaxTimestamp is reserved for local writes. Remote PUT and DELETE messages
// carrying it are ignored so a host write can always dominate them.
const MaxTimestamp = ^uint32(0)

func (k Kind) String() string {
	switch k {
	case KindPut:
		return "PUT"
	case KindDelete:
		return "DELETE"
	case KindDeleteEntity:
		return "DELETE_ENTITY"
	case KindAppend:
		return "APPEND"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= KindPut && k <= KindAppend
}

// Message is one CRDT frame.
type Message struct {
	Payload   []byte
	Entity    scenebridge.EntityID
	Component scenebridge.ComponentID
	Timestamp uint32
	Kind      Kind
}

// Key returns the register the message addresses.
func (m Message) Key() scenebridge.Key {
	return scenebridge.Key{Entity: m.Entity, Component: m.Component}
}

// Equal compares two messages field by field, payload bytes included.
// A nil payload equals an empty one.
func (m Message) Equal(o Message) bool {
	return m.Entity == o.Entity &&
		m.Component == o.Component &&
		m.Timestamp == o.Timestamp &&
		m.Kind == o.Kind &&
		bytes.Equal(m.Payload, o.Payload)
}

func (m Message) String() string {
	return fmt.Sprintf("%s e=%s c=%d t=%d len=%d", m.Kind, m.Entity, m.Component, m.Timestamp, len(m.Payload))
}

// Effect is the outcome of reconciling one message.
type Effect uint8

const (
	EffectApplied Effect = iota
	EffectObsoleteIgnored
	EffectDeleted
)

func (e Effect) String() string {
	switch e {
	case EffectApplied:
		return "applied"
	case EffectObsoleteIgnored:
		return "obsolete"
	case EffectDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("Effect(%d)", uint8(e))
	}
}

// ProcessedMessage pairs a message with its reconciliation effect.
type ProcessedMessage struct {
	Message
	Effect Effect
}
