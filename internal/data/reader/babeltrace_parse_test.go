package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
	"github.com/penwyp/go-coro-inspect/internal/testing/fixtures"
)

func TestParseBabeltraceLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected model.Event
	}{
		{
			name: "clock seconds without delta",
			line: `[1526469436.403123232] host ttracer:coro_beacon: { cpu_id = 0 }, { state = ( "Begin" : container = 0 ), coro_id = 0x7F3A10, coro_stack = 0x7F0000, type = ( "Net" : container = 1 ), msg = "fetch keys" }`,
			expected: model.Event{
				Name:      "ttracer:coro_beacon",
				Timestamp: 1526469436403123232,
				State:     model.StateBegin,
				CoroID:    0x7F3A10,
				Stack:     0x7F0000,
				Type:      "Net",
				Msg:       "fetch keys",
			},
		},
		{
			name: "time of day with delta",
			line: `[10:20:30.000000500] (+0.000001234) host ttracer:coro_beacon: { cpu_id = 3 }, { state = ( "End" : container = 2 ), coro_id = 0x1, coro_stack = 0x2, type = ( "DB" : container = 2 ), msg = "query" }`,
			expected: model.Event{
				Name:      "ttracer:coro_beacon",
				Timestamp: (10*3600+20*60+30)*1e9 + 500,
				State:     model.StateEnd,
				CoroID:    1,
				Stack:     2,
				Type:      "DB",
				Msg:       "query",
			},
		},
		{
			name: "no hostname, short fraction",
			line: `[12.5] ttracer:coro_beacon: { state = ( "Progress" : container = 1 ), coro_id = 17, coro_stack = 18, type = ( "Proc" : container = 0 ), msg = "" }`,
			expected: model.Event{
				Name:      "ttracer:coro_beacon",
				Timestamp: 12_500_000_000,
				State:     model.StateProgress,
				CoroID:    17,
				Stack:     18,
				Type:      "Proc",
			},
		},
		{
			name: "other event with nested payload",
			line: `[1.000000001] host ttracer:coro_duration: { cpu_id = 0 }, { coro_id = 0x10, coro_stack = 0x20, coro_ts = 1.5, type = ( "Net" : container = 1 ), msg = "x", extra = { a = 1, b = [ [0] = 2, [1] = 3 ] } }`,
			expected: model.Event{
				Name:      "ttracer:coro_duration",
				Timestamp: 1_000_000_001,
				CoroID:    0x10,
				Stack:     0x20,
				Type:      "Net",
				Msg:       "x",
			},
		},
		{
			name: "escaped quotes and separators in message",
			line: `[0.000000010] host ttracer:coro_beacon: { state = ( "Begin" : container = 0 ), coro_id = 0x1, coro_stack = 0x1, type = ( "Proc" : container = 0 ), msg = "a \"b\", c = { d }" }`,
			expected: model.Event{
				Name:      "ttracer:coro_beacon",
				Timestamp: 10,
				State:     model.StateBegin,
				CoroID:    1,
				Stack:     1,
				Type:      "Proc",
				Msg:       `a "b", c = { d }`,
			},
		},
		{
			name: "unknown enum label",
			line: `[0.0] host ttracer:coro_beacon: { state = ( <unknown> : container = 7 ), coro_id = 0x1, coro_stack = 0x1, type = ( "Proc" : container = 0 ), msg = "m" }`,
			expected: model.Event{
				Name:   "ttracer:coro_beacon",
				State:  model.CoroState("7"),
				CoroID: 1,
				Stack:  1,
				Type:   "Proc",
				Msg:    "m",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseBabeltraceLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, event)
		})
	}
}

func TestParseBabeltraceLineErrors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr string
	}{
		{name: "no timestamp", line: `host ttracer:coro_beacon: { }`, wantErr: "missing timestamp"},
		{name: "unterminated timestamp", line: `[12.5 host`, wantErr: "unterminated timestamp"},
		{name: "bad timestamp", line: `[abc] host ev: { }`, wantErr: "invalid timestamp"},
		{name: "no payload", line: `[1.0] host ev`, wantErr: "missing event payload"},
		{name: "unterminated struct", line: `[1.0] host ev: { a = 1`, wantErr: "unterminated"},
		{name: "unterminated string", line: `[1.0] host ev: { msg = "abc }`, wantErr: "unterminated string"},
		{name: "bad id", line: `[1.0] host ev: { coro_id = zz }`, wantErr: "invalid coro_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBabeltraceLine(tt.line)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParseBabeltraceLineMatchesFixtures(t *testing.T) {
	events := fixtures.NewTraceBuilder().
		At(1_700_000_000_123_456_789).
		Begin(0xFFFF800012345678, 0xFFFF800000000000, model.TypeNet, `say "hi"`).
		Advance(42).
		End(0xFFFF800012345678, 0xFFFF800000000000, model.TypeNet, `say "hi"`).
		Events()

	for _, want := range events {
		got, err := ParseBabeltraceLine(fixtures.BabeltraceLine(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
