package coro

import (
	"fmt"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
)

// Node is one execution of a coroutine between its Begin and matching End
// beacons.
type Node struct {
	ID       uint64
	Name     string
	Type     string
	Stack    uint64
	Start    int64
	Children []*Node

	end    int64
	closed bool
}

// NewNode opens a node from a Begin beacon.
func NewNode(event model.Event) *Node {
	return &Node{
		ID:    event.CoroID,
		Name:  event.Msg,
		Type:  event.Type,
		Stack: event.Stack,
		Start: event.Timestamp,
	}
}

// End returns the end timestamp and whether it has been set.
func (n *Node) End() (int64, bool) {
	return n.end, n.closed
}

// Closed reports whether the matching End beacon has been seen.
func (n *Node) Closed() bool {
	return n.closed
}

// SetEnd records the end timestamp. It can only be set once.
func (n *Node) SetEnd(ts int64) error {
	if n.closed {
		return newError(KindDoubleClose, n.Stack, n.ID,
			fmt.Sprintf("coro's %s end already been set", model.ToHex(n.ID)))
	}
	n.end = ts
	n.closed = true
	return nil
}

// Duration is end - start in trace clock units (nanoseconds).
func (n *Node) Duration() (int64, error) {
	if !n.closed {
		return 0, newError(KindUnclosed, n.Stack, n.ID,
			fmt.Sprintf("invalid coro duration for %q", n.Name))
	}
	return n.end - n.Start, nil
}

// AddChild appends a coroutine that began while n was the innermost open node.
func (n *Node) AddChild(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// LastChild returns the most recently started child, nil if there is none.
func (n *Node) LastChild() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[len(n.Children)-1]
}

// EndChild closes the last child with an End beacon, after checking the
// beacon describes the same coroutine.
func (n *Node) EndChild(event model.Event) error {
	child := n.LastChild()
	if child == nil {
		return newError(KindUnmatchedEnd, event.Stack, event.CoroID,
			fmt.Sprintf("%q has no child to close", n.Name))
	}
	if err := child.matches(event); err != nil {
		return err
	}
	return child.SetEnd(event.Timestamp)
}

func (n *Node) matches(event model.Event) error {
	if event.Type != n.Type {
		return newError(KindTypeMismatch, event.Stack, event.CoroID,
			fmt.Sprintf("got %q, open coroutine %q has %q", event.Type, n.Name, n.Type))
	}
	if event.Msg != n.Name {
		return newError(KindNameMismatch, event.Stack, event.CoroID,
			fmt.Sprintf("got %q, open coroutine is %q", event.Msg, n.Name))
	}
	if event.Stack != n.Stack {
		return newError(KindStackMismatch, event.Stack, event.CoroID,
			fmt.Sprintf("open coroutine %q belongs to %s", n.Name, model.ToHex(n.Stack)))
	}
	return nil
}

// Walk visits n and its descendants depth first, pre-order.
func (n *Node) Walk(depth int, fn func(node *Node, depth int) error) error {
	if err := fn(n, depth); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := child.Walk(depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	count := 1
	for _, child := range n.Children {
		count += child.Count()
	}
	return count
}
