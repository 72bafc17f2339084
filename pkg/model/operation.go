package model

import "fmt"

// DiffKind classifies a reconciliation operation
type DiffKind int

const (
	DiffCreate DiffKind = iota
	DiffDrop
	DiffAlter
	DiffIgnore
)

// DiffKinds lists every kind in display order
var DiffKinds = []DiffKind{DiffCreate, DiffDrop, DiffAlter, DiffIgnore}

// String returns a string representation of the kind
func (k DiffKind) String() string {
	switch k {
	case DiffCreate:
		return "create"
	case DiffDrop:
		return "drop"
	case DiffAlter:
		return "alter"
	case DiffIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Operation is one step of a reconciliation script. Ignore operations carry no SQL.
type Operation struct {
	Kind        DiffKind
	Object      ObjectRef
	Description string
	SQL         []string
}

// Category returns the object type the operation acts on
func (o Operation) Category() ObjectType {
	return o.Object.Type
}
