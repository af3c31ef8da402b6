package ops

import (
	"time"

	"github.com/driftframe/uiscript/internal/shared/id"
)

// Kind discriminates the operation union.
type Kind uint8

const (
	KindCreateElement Kind = iota + 1
	KindSetAttribute
	KindSetText
	KindAppendChild
	KindRemoveChild
	KindAddListener
	KindRemoveListener
	KindCallHost
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCreateElement:
		return "create_element"
	case KindSetAttribute:
		return "set_attribute"
	case KindSetText:
		return "set_text"
	case KindAppendChild:
		return "append_child"
	case KindRemoveChild:
		return "remove_child"
	case KindAddListener:
		return "add_listener"
	case KindRemoveListener:
		return "remove_listener"
	case KindCallHost:
		return "call_host"
	default:
		return "unknown"
	}
}

// Operation is the sealed union of tree mutations. Only types in this
// package implement it.
type Operation interface {
	Kind() Kind
}

// CreateElement instantiates a new element node of a whitelisted kind.
type CreateElement struct {
	ID        id.ElementID
	Component string
	Props     map[string]interface{}
}

// SetAttribute sets one attribute on an existing element.
type SetAttribute struct {
	ElementID id.ElementID
	Key       string
	Value     string
}

// SetText replaces an element's text content.
type SetText struct {
	ElementID id.ElementID
	Text      string
}

// AppendChild attaches a child to a parent element.
type AppendChild struct {
	ParentID id.ElementID
	ChildID  id.ElementID
}

// RemoveChild detaches a child from a parent element.
type RemoveChild struct {
	ParentID id.ElementID
	ChildID  id.ElementID
}

// AddListener registers an event listener on an element.
type AddListener struct {
	ElementID  id.ElementID
	ListenerID id.ListenerID
	Event      string
}

// RemoveListener unregisters a previously added listener.
type RemoveListener struct {
	ListenerID id.ListenerID
}

// CallHost carries an application-level command for the host, not a tree
// mutation. Urgent calls bypass the pending batch.
type CallHost struct {
	Action  string
	Payload map[string]interface{}
	Urgent  bool
}

func (CreateElement) Kind() Kind  { return KindCreateElement }
func (SetAttribute) Kind() Kind   { return KindSetAttribute }
func (SetText) Kind() Kind        { return KindSetText }
func (AppendChild) Kind() Kind    { return KindAppendChild }
func (RemoveChild) Kind() Kind    { return KindRemoveChild }
func (AddListener) Kind() Kind    { return KindAddListener }
func (RemoveListener) Kind() Kind { return KindRemoveListener }
func (CallHost) Kind() Kind       { return KindCallHost }

// Stamped pairs an operation with its enqueue-time sequence number and
// timestamp. The sequence is monotonic within one invocation.
type Stamped struct {
	Seq uint64
	At  time.Time
	Op  Operation
}

// Batch is an ordered group of operations handed to the renderer as one
// atomic unit. Relative enqueue order is preserved.
type Batch struct {
	ID  id.BatchID
	Ops []Stamped
}

// Len returns the number of operations in the batch.
func (b Batch) Len() int { return len(b.Ops) }
