package types

import (
	"encoding/json"
	"fmt"
)

// SchemaSource says where a Schema came from.
type SchemaSource string

const (
	SchemaExternal SchemaSource = "openapi"
	SchemaInferred SchemaSource = "inferred"
	SchemaManual   SchemaSource = "manual"
)

// Schema is a structural description of a payload. For inferred schemas the
// data is the captured sample itself.
type Schema struct {
	Source SchemaSource    `json:"source"`
	Data   json.RawMessage `json:"data"`
}

// SlotState distinguishes "never configured" from "explicitly removed".
type SlotState int

const (
	SlotUnset SlotState = iota
	SlotActive
	SlotCleared
)

var slotStateNames = map[SlotState]string{
	SlotUnset:   "unset",
	SlotActive:  "active",
	SlotCleared: "cleared",
}

func (s SlotState) String() string {
	if n, ok := slotStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("SlotState(%d)", int(s))
}

func (s SlotState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SlotState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for k, v := range slotStateNames {
		if v == name {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown schema slot state %q", name)
}

// SchemaSlot holds the tri-state schema attachment of an endpoint.
type SchemaSlot struct {
	State  SlotState `json:"state"`
	Schema *Schema   `json:"schema,omitempty"`
}

// ActiveSchema returns a slot holding s.
func ActiveSchema(s Schema) SchemaSlot {
	return SchemaSlot{State: SlotActive, Schema: &s}
}

// ClearedSchema returns a slot marked as explicitly removed.
func ClearedSchema() SchemaSlot {
	return SchemaSlot{State: SlotCleared}
}

// Get returns the schema when the slot is active.
func (s SchemaSlot) Get() (Schema, bool) {
	if s.State != SlotActive || s.Schema == nil {
		return Schema{}, false
	}
	return *s.Schema, true
}

// Clone deep-copies the slot.
func (s SchemaSlot) Clone() SchemaSlot {
	if s.Schema == nil {
		return s
	}
	sc := *s.Schema
	sc.Data = append(json.RawMessage(nil), s.Schema.Data...)
	return SchemaSlot{State: s.State, Schema: &sc}
}

// SchemaRole is the part of an exchange a schema describes.
type SchemaRole string

const (
	RoleRequest  SchemaRole = "request"
	RoleResponse SchemaRole = "response"
	RoleError    SchemaRole = "error"
)

// SchemaKey identifies an externally-supplied schema.
type SchemaKey struct {
	Method string     `json:"method"`
	Path   string     `json:"path"`
	Role   SchemaRole `json:"role"`
}

// ExternalSchema is one entry in an externally-supplied schema table.
type ExternalSchema struct {
	Key  SchemaKey       `json:"key"`
	Data json.RawMessage `json:"data"`
}
