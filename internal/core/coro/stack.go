package coro

import (
	"fmt"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
)

// Stack is the reconstruction state of one logical execution stack.
type Stack struct {
	ID    uint64
	Roots []*Node

	open []*Node
}

// NewStack creates an empty stack for the given identifier.
func NewStack(id uint64) *Stack {
	return &Stack{ID: id}
}

// Current returns the innermost open coroutine, nil when none is open.
func (s *Stack) Current() *Node {
	if len(s.open) == 0 {
		return nil
	}
	return s.open[len(s.open)-1]
}

// Depth is the number of currently open coroutines.
func (s *Stack) Depth() int {
	return len(s.open)
}

// Begin opens a coroutine on the stack.
func (s *Stack) Begin(event model.Event) (*Node, error) {
	node := NewNode(event)
	current := s.Current()
	if current != nil && node.Stack != current.Stack {
		return nil, newError(KindStackMismatch, node.Stack, node.ID,
			fmt.Sprintf("coros %q and %q stack's id are different", node.Name, current.Name))
	}

	if current != nil {
		current.AddChild(node)
	} else {
		s.Roots = append(s.Roots, node)
	}
	s.open = append(s.open, node)
	return node, nil
}

// End closes the innermost open coroutine. The state is left untouched when
// the beacon does not match it.
func (s *Stack) End(event model.Event) (*Node, error) {
	closing := s.Current()
	if closing == nil {
		return nil, newError(KindUnmatchedEnd, event.Stack, event.CoroID,
			"no open coroutine on stack")
	}

	if len(s.open) > 1 {
		parent := s.open[len(s.open)-2]
		if err := parent.EndChild(event); err != nil {
			return nil, err
		}
	} else if err := closing.SetEnd(event.Timestamp); err != nil {
		return nil, err
	}

	s.open = s.open[:len(s.open)-1]
	return closing, nil
}

// Count returns the number of coroutines recorded on the stack.
func (s *Stack) Count() int {
	count := 0
	for _, root := range s.Roots {
		count += root.Count()
	}
	return count
}

// Walk visits every node of the stack depth first, pre-order.
func (s *Stack) Walk(fn func(node *Node, depth int) error) error {
	for _, root := range s.Roots {
		if err := root.Walk(0, fn); err != nil {
			return err
		}
	}
	return nil
}
