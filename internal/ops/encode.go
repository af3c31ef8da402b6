package ops

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// envelope is the flat wire form of one stamped operation.
type envelope struct {
	Kind       string                 `json:"kind"`
	Seq        uint64                 `json:"seq"`
	At         time.Time              `json:"at"`
	ID         string                 `json:"id,omitempty"`
	ElementID  string                 `json:"element_id,omitempty"`
	ParentID   string                 `json:"parent_id,omitempty"`
	ChildID    string                 `json:"child_id,omitempty"`
	ListenerID string                 `json:"listener_id,omitempty"`
	Component  string                 `json:"component,omitempty"`
	Key        string                 `json:"key,omitempty"`
	Value      string                 `json:"value,omitempty"`
	Text       string                 `json:"text,omitempty"`
	Event      string                 `json:"event,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Props      map[string]interface{} `json:"props,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Urgent     bool                   `json:"urgent,omitempty"`
}

type batchEnvelope struct {
	ID  string     `json:"id"`
	Ops []envelope `json:"ops"`
}

// EncodeBatch serializes a batch to JSON for transport or debug output.
func EncodeBatch(b Batch) ([]byte, error) {
	env := batchEnvelope{
		ID:  b.ID.String(),
		Ops: make([]envelope, 0, len(b.Ops)),
	}
	for _, s := range b.Ops {
		e, err := toEnvelope(s)
		if err != nil {
			return nil, err
		}
		env.Ops = append(env.Ops, e)
	}
	return sonic.Marshal(env)
}

func toEnvelope(s Stamped) (envelope, error) {
	e := envelope{
		Kind: s.Op.Kind().String(),
		Seq:  s.Seq,
		At:   s.At,
	}

	switch op := s.Op.(type) {
	case CreateElement:
		e.ID = op.ID.String()
		e.Component = op.Component
		e.Props = op.Props
	case SetAttribute:
		e.ElementID = op.ElementID.String()
		e.Key = op.Key
		e.Value = op.Value
	case SetText:
		e.ElementID = op.ElementID.String()
		e.Text = op.Text
	case AppendChild:
		e.ParentID = op.ParentID.String()
		e.ChildID = op.ChildID.String()
	case RemoveChild:
		e.ParentID = op.ParentID.String()
		e.ChildID = op.ChildID.String()
	case AddListener:
		e.ElementID = op.ElementID.String()
		e.ListenerID = op.ListenerID.String()
		e.Event = op.Event
	case RemoveListener:
		e.ListenerID = op.ListenerID.String()
	case CallHost:
		e.Action = op.Action
		e.Payload = op.Payload
		e.Urgent = op.Urgent
	default:
		return envelope{}, fmt.Errorf("unencodable operation kind: %T", s.Op)
	}

	return e, nil
}
