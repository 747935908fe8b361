// Package coro rebuilds nested coroutine executions from the flat stream of
// coroutine beacons recorded by the tracer.
package coro

import (
	"errors"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
)

// Stacks is the reconstruction result: stacks in first-seen order.
type Stacks struct {
	order []uint64
	byID  map[uint64]*Stack
}

func newStacks() *Stacks {
	return &Stacks{byID: make(map[uint64]*Stack)}
}

// Get returns the stack with the given identifier.
func (s *Stacks) Get(id uint64) (*Stack, bool) {
	stack, ok := s.byID[id]
	return stack, ok
}

// Len returns the number of stacks seen.
func (s *Stacks) Len() int {
	return len(s.order)
}

// List returns the stacks in first-seen order.
func (s *Stacks) List() []*Stack {
	stacks := make([]*Stack, 0, len(s.order))
	for _, id := range s.order {
		stacks = append(stacks, s.byID[id])
	}
	return stacks
}

func (s *Stacks) getOrCreate(id uint64) *Stack {
	if stack, ok := s.byID[id]; ok {
		return stack
	}
	stack := NewStack(id)
	s.byID[id] = stack
	s.order = append(s.order, id)
	return stack
}

// Reconstructor folds beacon events into per-stack coroutine forests.
type Reconstructor struct {
	eventName string
	stacks    *Stacks
	processed int
}

// NewReconstructor creates a reconstructor accepting beacons named eventName.
// An empty name selects model.DefaultBeaconEvent.
func NewReconstructor(eventName string) *Reconstructor {
	if eventName == "" {
		eventName = model.DefaultBeaconEvent
	}
	return &Reconstructor{
		eventName: eventName,
		stacks:    newStacks(),
	}
}

// Process applies one event. Events are expected in non-decreasing timestamp
// order; that is not checked.
func (r *Reconstructor) Process(event model.Event) error {
	index := r.processed
	r.processed++

	if event.Name != r.eventName {
		return nil
	}

	var err error
	switch event.State {
	case model.StateBegin:
		_, err = r.stacks.getOrCreate(event.Stack).Begin(event)
	case model.StateEnd:
		stack, ok := r.stacks.Get(event.Stack)
		if !ok {
			err = newError(KindUnknownStack, event.Stack, event.CoroID,
				"invalid stack id "+model.ToHex(event.Stack))
			break
		}
		_, err = stack.End(event)
	}

	if err != nil {
		var se *StructuralError
		if errors.As(err, &se) {
			ev := event
			se.Index = index
			se.Event = &ev
		}
		return err
	}
	return nil
}

// Stacks returns the stacks reconstructed so far.
func (r *Reconstructor) Stacks() *Stacks {
	return r.stacks
}

// Reconstruct folds every event into a fresh reconstructor and returns the
// resulting stacks. It stops at the first structural error.
func Reconstruct(events []model.Event, eventName string) (*Stacks, error) {
	r := NewReconstructor(eventName)
	for _, event := range events {
		if err := r.Process(event); err != nil {
			return nil, err
		}
	}
	return r.Stacks(), nil
}
