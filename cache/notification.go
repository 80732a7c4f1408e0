package cache

import (
	"fmt"
	"time"
)

type Kind uint8

const (
	KindStore Kind = iota + 1
	KindRemove
	KindClear
	KindTouch
	// KindRetrieve is read marker. It has zero event id and is never persisted.
	KindRetrieve
)

func (k Kind) String() string {
	switch k {
	case KindStore:
		return "Store"
	case KindRemove:
		return "Remove"
	case KindClear:
		return "Clear"
	case KindTouch:
		return "Touch"
	case KindRetrieve:
		return "Retrieve"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Operation is store command, that produced KindStore notification.
type Operation uint8

const (
	OpAdd Operation = iota + 1
	OpStore
	OpReplace
	OpAppend
	OpPrepend
)

func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "Add"
	case OpStore:
		return "Store"
	case OpReplace:
		return "Replace"
	case OpAppend:
		return "Append"
	case OpPrepend:
		return "Prepend"
	}
	return fmt.Sprintf("Operation(%d)", uint8(o))
}

// Notification describes store mutation or read.
// Fields unused by Kind are zero: Clear has only EventID, Remove and Retrieve have Key,
// Touch has Key and Expiry. Store notification Data is full resulting value,
// also for Append and Prepend.
type Notification struct {
	Kind      Kind
	Key       string
	Data      []byte
	Flags     uint64
	Expiry    time.Time
	Operation Operation
	EventID   int64
}

// Durable reports that notification changes store state and should be persisted.
func (n Notification) Durable() bool { return n.Kind != KindRetrieve }

func (n Notification) String() string {
	switch n.Kind {
	case KindStore:
		return fmt.Sprintf("#%d %s %s %q (%d bytes)", n.EventID, n.Kind, n.Operation, n.Key, len(n.Data))
	case KindClear:
		return fmt.Sprintf("#%d %s", n.EventID, n.Kind)
	}
	return fmt.Sprintf("#%d %s %q", n.EventID, n.Kind, n.Key)
}

func storeNotification(key string, op Operation, e Entry) Notification {
	return Notification{
		Kind:      KindStore,
		Key:       key,
		Data:      e.Data,
		Flags:     e.Flags,
		Expiry:    e.Expiry,
		Operation: op,
	}
}
