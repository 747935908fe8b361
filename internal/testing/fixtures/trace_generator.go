// Package fixtures generates coroutine traces for tests.
package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
)

// TraceBuilder accumulates beacon events in timestamp order.
type TraceBuilder struct {
	events []model.Event
	now    int64
}

// NewTraceBuilder creates an empty builder starting at timestamp 0.
func NewTraceBuilder() *TraceBuilder {
	return &TraceBuilder{}
}

// At moves the clock to ts nanoseconds.
func (b *TraceBuilder) At(ts int64) *TraceBuilder {
	b.now = ts
	return b
}

// Advance moves the clock forward by d nanoseconds.
func (b *TraceBuilder) Advance(d int64) *TraceBuilder {
	b.now += d
	return b
}

// Begin appends a Begin beacon at the current time.
func (b *TraceBuilder) Begin(id, stack uint64, typ, msg string) *TraceBuilder {
	return b.beacon(model.StateBegin, id, stack, typ, msg)
}

// End appends an End beacon at the current time.
func (b *TraceBuilder) End(id, stack uint64, typ, msg string) *TraceBuilder {
	return b.beacon(model.StateEnd, id, stack, typ, msg)
}

// Other appends a non-beacon event.
func (b *TraceBuilder) Other(name string) *TraceBuilder {
	b.events = append(b.events, model.Event{Name: name, Timestamp: b.now})
	return b
}

func (b *TraceBuilder) beacon(state model.CoroState, id, stack uint64, typ, msg string) *TraceBuilder {
	b.events = append(b.events, model.Event{
		Name:      model.DefaultBeaconEvent,
		Timestamp: b.now,
		State:     state,
		CoroID:    id,
		Stack:     stack,
		Type:      typ,
		Msg:       msg,
	})
	return b
}

// Events returns a copy of the accumulated events.
func (b *TraceBuilder) Events() []model.Event {
	return append([]model.Event(nil), b.events...)
}

// Nested builds a well-formed trace on one stack: depth levels of nesting,
// repeated width times, each coroutine lasting 1ms more than its child.
func Nested(stack uint64, depth, width int) *TraceBuilder {
	b := NewTraceBuilder()
	id := uint64(1)
	for w := 0; w < width; w++ {
		ids := make([]uint64, depth)
		for d := 0; d < depth; d++ {
			ids[d] = id
			b.Begin(id, stack, model.TypeProc, fmt.Sprintf("level%d", d)).Advance(1_000_000)
			id++
		}
		for d := depth - 1; d >= 0; d-- {
			b.Advance(500_000).End(ids[d], stack, model.TypeProc, fmt.Sprintf("level%d", d))
		}
		b.Advance(1_000_000)
	}
	return b
}

// JSONLLine renders an event in the JSONL trace format.
func JSONLLine(e model.Event) string {
	rec := map[string]interface{}{
		"name":      e.Name,
		"timestamp": e.Timestamp,
		"fields": map[string]interface{}{
			"state":      string(e.State),
			"coro_id":    model.ToHex(e.CoroID),
			"coro_stack": model.ToHex(e.Stack),
			"type":       e.Type,
			"msg":        e.Msg,
		},
	}
	data, err := sonic.Marshal(rec)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// BabeltraceLine renders an event the way `babeltrace --clock-seconds
// --no-delta` prints it.
func BabeltraceLine(e model.Event) string {
	ts := fmt.Sprintf("[%d.%09d]", e.Timestamp/1e9, e.Timestamp%1e9)
	if e.Name != model.DefaultBeaconEvent {
		return fmt.Sprintf("%s testhost %s: { cpu_id = 0 }, { value = 42 }", ts, e.Name)
	}
	return fmt.Sprintf(`%s testhost %s: { cpu_id = 0 }, { state = ( "%s" : container = %d ), coro_id = %s, coro_stack = %s, type = ( "%s" : container = 0 ), msg = "%s" }`,
		ts, e.Name, e.State, stateContainer(e.State), model.ToHex(e.CoroID), model.ToHex(e.Stack), e.Type,
		strings.ReplaceAll(e.Msg, `"`, `\"`))
}

func stateContainer(state model.CoroState) int {
	switch state {
	case model.StateBegin:
		return 0
	case model.StateProgress:
		return 1
	case model.StateEnd:
		return 2
	default:
		return 3
	}
}

// WriteJSONL writes events as a JSONL trace and returns its path.
func WriteJSONL(dir, name string, events []model.Event) (string, error) {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, JSONLLine(e))
	}
	return writeLines(dir, name, lines)
}

// WriteBabeltraceText writes the babeltrace text rendering of events.
func WriteBabeltraceText(dir, name string, events []model.Event) (string, error) {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, BabeltraceLine(e))
	}
	return writeLines(dir, name, lines)
}

// CreateCTFDir creates a directory that looks like an LTTng CTF trace
// (metadata plus one stream file) and returns its path.
func CreateCTFDir(dir string) (string, error) {
	traceDir := filepath.Join(dir, "ust", "uid", "1000", "64-bit")
	if err := os.MkdirAll(traceDir, 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(traceDir, "metadata"), []byte("/* CTF 1.8 */\n"), 0644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(traceDir, "channel0_0"), []byte{0xc1, 0x1f, 0xfc, 0xc1}, 0644); err != nil {
		return "", err
	}
	return dir, nil
}

// FakeBabeltrace writes an executable script that ignores its arguments and
// prints the given text file, standing in for the babeltrace binary.
func FakeBabeltrace(dir, outputFile string) (string, error) {
	script := filepath.Join(dir, "fake-babeltrace")
	content := fmt.Sprintf("#!/bin/sh\ncat '%s'\n", outputFile)
	if err := os.WriteFile(script, []byte(content), 0755); err != nil {
		return "", err
	}
	return script, nil
}

// FailingBabeltrace writes a script that prints msg on stderr and exits 1.
func FailingBabeltrace(dir, msg string) (string, error) {
	script := filepath.Join(dir, "failing-babeltrace")
	content := fmt.Sprintf("#!/bin/sh\necho '%s' >&2\nexit 1\n", msg)
	if err := os.WriteFile(script, []byte(content), 0755); err != nil {
		return "", err
	}
	return script, nil
}

func writeLines(dir, name string, lines []string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}
