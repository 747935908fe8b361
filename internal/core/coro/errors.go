package coro

import (
	"errors"
	"fmt"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
)

// Kind classifies a structural inconsistency in a coroutine trace.
type Kind int

const (
	KindUnknownStack Kind = iota + 1
	KindUnmatchedEnd
	KindTypeMismatch
	KindNameMismatch
	KindStackMismatch
	KindDoubleClose
	KindUnclosed
)

func (k Kind) String() string {
	switch k {
	case KindUnknownStack:
		return "unknown stack"
	case KindUnmatchedEnd:
		return "unmatched end"
	case KindTypeMismatch:
		return "type does not match"
	case KindNameMismatch:
		return "msg does not match"
	case KindStackMismatch:
		return "stack does not match"
	case KindDoubleClose:
		return "end already set"
	case KindUnclosed:
		return "coroutine not closed"
	default:
		return "unknown"
	}
}

// Error lets a Kind be used as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// StructuralError reports a trace that cannot be rebuilt into a properly
// nested coroutine forest.
type StructuralError struct {
	Kind   Kind
	Stack  uint64
	CoroID uint64
	Detail string

	// Index is the position of the offending event in the input, -1 when the
	// error was not raised while processing an event.
	Index int
	Event *model.Event
}

func (e *StructuralError) Error() string {
	msg := fmt.Sprintf("%s (stack %s, coro %s)", e.Kind, model.ToHex(e.Stack), model.ToHex(e.CoroID))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Event != nil {
		msg += fmt.Sprintf(" at event #%d [%s]", e.Index, e.Event)
	}
	return msg
}

// Is matches a StructuralError against its Kind.
func (e *StructuralError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

func newError(kind Kind, stack, coroID uint64, detail string) *StructuralError {
	return &StructuralError{Kind: kind, Stack: stack, CoroID: coroID, Detail: detail, Index: -1}
}

// IsStructural reports whether err is, or wraps, a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
