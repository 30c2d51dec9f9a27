package verify

import (
	"fmt"

	"github.com/rfielding/dbc/diag"
	"github.com/rfielding/dbc/protocol"
	"github.com/google/uuid"
)

// Kind classifies a runtime contract violation.
type Kind int

const (
	// Precondition: the caller broke the declared protocol.
	Precondition Kind = iota
	// Postcondition: the implementation failed to establish its promise.
	Postcondition
	// Invariant: a type-level invariant was broken after a public operation.
	Invariant
)

func (k Kind) String() string {
	switch k {
	case Precondition:
		return "precondition"
	case Postcondition:
		return "postcondition"
	case Invariant:
		return "invariant"
	}
	return "unknown"
}

// Violation is the synchronous error raised at the violating call
// boundary. It is never recovered internally; it terminates the current
// call path and propagates to the caller.
type Violation struct {
	Kind      Kind
	Type      string
	Operation string
	Clause    string
	CallID    uuid.UUID
	State     protocol.Value
	Snapshot  map[string]any
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s violation in %s.%s: clause %q not satisfied (state=%s)",
		v.Kind, v.Type, v.Operation, v.Clause, v.State)
}

// Diagnostic converts the violation into the reporter's record shape.
func (v *Violation) Diagnostic() diag.Diagnostic {
	return diag.Diagnostic{
		Severity:  diag.SeverityError,
		Operation: v.Type + "." + v.Operation,
		Clause:    v.Clause,
		Message:   v.Error(),
	}
}
