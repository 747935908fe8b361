package coro

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
)

func begin(id, stack uint64, typ, msg string, ts int64) model.Event {
	return model.Event{Name: model.DefaultBeaconEvent, State: model.StateBegin,
		CoroID: id, Stack: stack, Type: typ, Msg: msg, Timestamp: ts}
}

func end(id, stack uint64, typ, msg string, ts int64) model.Event {
	return model.Event{Name: model.DefaultBeaconEvent, State: model.StateEnd,
		CoroID: id, Stack: stack, Type: typ, Msg: msg, Timestamp: ts}
}

// shape is a comparable projection of a node tree.
type shape struct {
	Name     string
	Duration int64
	Children []shape
}

func shapeOf(t *testing.T, nodes []*Node) []shape {
	t.Helper()
	var out []shape
	for _, n := range nodes {
		d, err := n.Duration()
		require.NoError(t, err)
		out = append(out, shape{Name: n.Name, Duration: d, Children: shapeOf(t, n.Children)})
	}
	return out
}

func TestReconstructSingleRoot(t *testing.T) {
	stacks, err := Reconstruct([]model.Event{
		begin(1, 10, "A", "foo", 0),
		end(1, 10, "A", "foo", 5_000_000),
	}, "")
	require.NoError(t, err)
	require.Equal(t, 1, stacks.Len())

	stack, ok := stacks.Get(10)
	require.True(t, ok)
	require.Len(t, stack.Roots, 1)
	assert.Equal(t, "foo", stack.Roots[0].Name)

	d, err := stack.Roots[0].Duration()
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), d)
}

func TestReconstructNested(t *testing.T) {
	stacks, err := Reconstruct([]model.Event{
		begin(1, 10, "Proc", "outer", 0),
		begin(2, 10, "Net", "inner", 1_000_000),
		end(2, 10, "Net", "inner", 2_000_000),
		end(1, 10, "Proc", "outer", 3_000_000),
	}, "")
	require.NoError(t, err)

	stack, _ := stacks.Get(10)
	want := []shape{{
		Name:     "outer",
		Duration: 3_000_000,
		Children: []shape{{Name: "inner", Duration: 1_000_000}},
	}}
	if diff := cmp.Diff(want, shapeOf(t, stack.Roots)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, stack.Depth())
}

func TestReconstructInterleavedStacks(t *testing.T) {
	stacks, err := Reconstruct([]model.Event{
		begin(1, 0xA, "Proc", "a1", 0),
		begin(2, 0xB, "Proc", "b1", 1),
		begin(3, 0xA, "Net", "a1.child", 2),
		end(2, 0xB, "Proc", "b1", 3),
		end(3, 0xA, "Net", "a1.child", 4),
		begin(4, 0xB, "DB", "b2", 5),
		end(1, 0xA, "Proc", "a1", 6),
		end(4, 0xB, "DB", "b2", 7),
	}, "")
	require.NoError(t, err)

	list := stacks.List()
	require.Len(t, list, 2)
	assert.Equal(t, uint64(0xA), list[0].ID)
	assert.Equal(t, uint64(0xB), list[1].ID)

	if diff := cmp.Diff([]shape{{Name: "a1", Duration: 6, Children: []shape{{Name: "a1.child", Duration: 2}}}},
		shapeOf(t, list[0].Roots)); diff != "" {
		t.Errorf("stack A mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]shape{{Name: "b1", Duration: 2}, {Name: "b2", Duration: 2}},
		shapeOf(t, list[1].Roots)); diff != "" {
		t.Errorf("stack B mismatch (-want +got):\n%s", diff)
	}
}

func TestReconstructNodeCountMatchesBegins(t *testing.T) {
	var events []model.Event
	ts := int64(0)
	begins := 0
	// three siblings, each with two levels of nesting
	for i := uint64(0); i < 3; i++ {
		base := i * 10
		events = append(events, begin(base+1, 7, "Proc", "root", ts))
		events = append(events, begin(base+2, 7, "Net", "mid", ts+1))
		events = append(events, begin(base+3, 7, "DB", "leaf", ts+2))
		events = append(events, end(base+3, 7, "DB", "leaf", ts+3))
		events = append(events, end(base+2, 7, "Net", "mid", ts+4))
		events = append(events, end(base+1, 7, "Proc", "root", ts+5))
		begins += 3
		ts += 10
	}

	stacks, err := Reconstruct(events, "")
	require.NoError(t, err)
	stack, _ := stacks.Get(7)
	assert.Len(t, stack.Roots, 3)
	assert.Equal(t, begins, stack.Count())
}

func TestReconstructIgnoresOtherEvents(t *testing.T) {
	stacks, err := Reconstruct([]model.Event{
		{Name: "ttracer:coro_duration", State: model.StateEnd, Stack: 99},
		begin(1, 10, "Proc", "foo", 0),
		{Name: model.DefaultBeaconEvent, State: model.StateProgress, CoroID: 1, Stack: 10, Msg: "foo"},
		end(1, 10, "Proc", "foo", 10),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, stacks.Len())
}

func TestReconstructCustomEventName(t *testing.T) {
	ev := begin(1, 10, "Proc", "foo", 0)
	ev.Name = "custom:beacon"

	stacks, err := Reconstruct([]model.Event{ev, begin(2, 11, "Proc", "bar", 0)}, "custom:beacon")
	require.NoError(t, err)
	require.Equal(t, 1, stacks.Len())
	_, ok := stacks.Get(10)
	assert.True(t, ok)
}

func TestProcessUnknownStack(t *testing.T) {
	r := NewReconstructor("")
	require.NoError(t, r.Process(begin(1, 10, "Proc", "foo", 0)))

	err := r.Process(end(1, 20, "Proc", "foo", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, KindUnknownStack))

	var se *StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Index)
	assert.Equal(t, uint64(20), se.Stack)
	require.NotNil(t, se.Event)

	stack, _ := r.Stacks().Get(10)
	assert.False(t, stack.Roots[0].Closed(), "no node may be mutated")
	assert.Equal(t, 1, r.Stacks().Len())
}

func TestProcessEndWithoutBegin(t *testing.T) {
	_, err := Reconstruct([]model.Event{end(1, 10, "Proc", "foo", 1)}, "")
	assert.ErrorIs(t, err, KindUnknownStack)
}

func TestProcessUnmatchedEnd(t *testing.T) {
	_, err := Reconstruct([]model.Event{
		begin(1, 10, "Proc", "foo", 0),
		end(1, 10, "Proc", "foo", 1),
		end(1, 10, "Proc", "foo", 2),
	}, "")
	assert.ErrorIs(t, err, KindUnmatchedEnd)
}

func TestProcessMismatches(t *testing.T) {
	tests := []struct {
		name  string
		close model.Event
		kind  Kind
	}{
		{
			name:  "type",
			close: end(2, 10, "DB", "inner", 2),
			kind:  KindTypeMismatch,
		},
		{
			name:  "msg",
			close: end(2, 10, "Net", "other", 2),
			kind:  KindNameMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconstructor("")
			require.NoError(t, r.Process(begin(1, 10, "Proc", "outer", 0)))
			require.NoError(t, r.Process(begin(2, 10, "Net", "inner", 1)))

			err := r.Process(tt.close)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Contains(t, err.Error(), tt.kind.String())

			stack, _ := r.Stacks().Get(10)
			assert.Equal(t, 2, stack.Depth(), "failed close keeps the coroutine open")
		})
	}
}

func TestStackEndStackMismatch(t *testing.T) {
	s := NewStack(10)
	_, err := s.Begin(begin(1, 10, "Proc", "outer", 0))
	require.NoError(t, err)
	_, err = s.Begin(begin(2, 10, "Net", "inner", 1))
	require.NoError(t, err)

	_, err = s.End(end(2, 11, "Net", "inner", 2))
	assert.ErrorIs(t, err, KindStackMismatch)
	assert.Contains(t, err.Error(), "stack does not match")
}

func TestStackBeginStackMismatch(t *testing.T) {
	s := NewStack(10)
	_, err := s.Begin(begin(1, 10, "Proc", "outer", 0))
	require.NoError(t, err)

	_, err = s.Begin(begin(2, 11, "Net", "stray", 1))
	assert.ErrorIs(t, err, KindStackMismatch)
	assert.Empty(t, s.Roots[0].Children)
	assert.Equal(t, 1, s.Depth())
}

func TestRootCloseIsNotValidated(t *testing.T) {
	stacks, err := Reconstruct([]model.Event{
		begin(1, 10, "Proc", "foo", 0),
		end(1, 10, "Net", "bar", 4),
	}, "")
	require.NoError(t, err)
	stack, _ := stacks.Get(10)
	d, err := stack.Roots[0].Duration()
	require.NoError(t, err)
	assert.Equal(t, int64(4), d)
}

func TestNodeSetEndTwice(t *testing.T) {
	n := NewNode(begin(1, 10, "Proc", "foo", 100))
	require.NoError(t, n.SetEnd(150))

	err := n.SetEnd(200)
	assert.ErrorIs(t, err, KindDoubleClose)

	ts, ok := n.End()
	assert.True(t, ok)
	assert.Equal(t, int64(150), ts, "end is never reset")
}

func TestNodeDurationUnclosed(t *testing.T) {
	n := NewNode(begin(1, 10, "Proc", "foo", 100))
	_, err := n.Duration()
	assert.ErrorIs(t, err, KindUnclosed)
	assert.True(t, IsStructural(err))

	require.NoError(t, n.SetEnd(350))
	d, err := n.Duration()
	require.NoError(t, err)
	assert.Equal(t, int64(250), d)
}

func TestStackWalkPreOrder(t *testing.T) {
	stacks, err := Reconstruct([]model.Event{
		begin(1, 1, "Proc", "a", 0),
		begin(2, 1, "Proc", "b", 1),
		end(2, 1, "Proc", "b", 2),
		begin(3, 1, "Proc", "c", 3),
		begin(4, 1, "Proc", "d", 4),
		end(4, 1, "Proc", "d", 5),
		end(3, 1, "Proc", "c", 6),
		end(1, 1, "Proc", "a", 7),
		begin(5, 1, "Proc", "e", 8),
		end(5, 1, "Proc", "e", 9),
	}, "")
	require.NoError(t, err)

	stack, _ := stacks.Get(1)
	var visited []string
	var depths []int
	require.NoError(t, stack.Walk(func(n *Node, depth int) error {
		visited = append(visited, n.Name)
		depths = append(depths, depth)
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, visited)
	assert.Equal(t, []int{0, 1, 1, 2, 0}, depths)
}
