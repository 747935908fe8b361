package model

import "fmt"

// DefaultBeaconEvent is the tracepoint emitted by the ttracer provider around
// every coroutine execution.
const DefaultBeaconEvent = "ttracer:coro_beacon"

// CoroState mirrors the coro_state enum of the tracepoint provider.
type CoroState string

const (
	StateBegin    CoroState = "Begin"
	StateProgress CoroState = "Progress"
	StateEnd      CoroState = "End"
	StateError    CoroState = "Error"
)

// Coroutine type labels declared by the provider. Readers accept any label.
const (
	TypeProc = "Proc"
	TypeNet  = "Net"
	TypeDB   = "DB"
)

// Field names of a coro_beacon record.
const (
	FieldState  = "state"
	FieldCoroID = "coro_id"
	FieldStack  = "coro_stack"
	FieldType   = "type"
	FieldMsg    = "msg"
)

// BeaconFields lists the payload fields of a coro_beacon in declaration order.
var BeaconFields = []string{FieldState, FieldCoroID, FieldStack, FieldType, FieldMsg}

// Event is a single decoded trace record.
type Event struct {
	Name      string    `json:"name"`
	Timestamp int64     `json:"timestamp"`
	State     CoroState `json:"state"`
	CoroID    uint64    `json:"coro_id"`
	Stack     uint64    `json:"coro_stack"`
	Type      string    `json:"type"`
	Msg       string    `json:"msg"`
}

// Field returns the payload field with the given name, formatted as a string.
func (e Event) Field(name string) (string, bool) {
	switch name {
	case FieldState:
		return string(e.State), true
	case FieldCoroID:
		return ToHex(e.CoroID), true
	case FieldStack:
		return ToHex(e.Stack), true
	case FieldType:
		return e.Type, true
	case FieldMsg:
		return e.Msg, true
	}
	return "", false
}

func (e Event) String() string {
	return fmt.Sprintf("%s ts=%d state=%s coro=%s stack=%s type=%s msg=%q",
		e.Name, e.Timestamp, e.State, ToHex(e.CoroID), ToHex(e.Stack), e.Type, e.Msg)
}

// ToHex renders an identifier the way the trace viewer does: 0x prefix,
// uppercase digits.
func ToHex(id uint64) string {
	return fmt.Sprintf("0x%X", id)
}
