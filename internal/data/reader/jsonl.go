package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
	"github.com/penwyp/go-coro-inspect/internal/util"
)

// Record is the JSON Lines representation of a trace event:
//
//	{"name":"ttracer:coro_beacon","timestamp":1000,"fields":{"state":"Begin","coro_id":"0x7F01","coro_stack":"0x7F00","type":"Net","msg":"fetch"}}
type Record struct {
	Name      string       `json:"name"`
	Timestamp int64        `json:"timestamp"`
	Fields    RecordFields `json:"fields"`
}

type RecordFields struct {
	State  string `json:"state,omitempty"`
	CoroID HexID  `json:"coro_id"`
	Stack  HexID  `json:"coro_stack"`
	Type   string `json:"type,omitempty"`
	Msg    string `json:"msg,omitempty"`
}

// HexID is a pointer-sized identifier. It encodes as a "0x..." string and
// decodes from either that form or a plain JSON number.
type HexID uint64

func (h HexID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(model.ToHex(uint64(h)))), nil
}

func (h *HexID) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := sonic.Unmarshal(data, &n); err == nil {
		*h = HexID(n)
		return nil
	}

	var s string
	if err := sonic.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("identifier must be a number or a hex string")
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	*h = HexID(n)
	return nil
}

// RecordFromEvent converts an event to its JSONL record.
func RecordFromEvent(e model.Event) Record {
	return Record{
		Name:      e.Name,
		Timestamp: e.Timestamp,
		Fields: RecordFields{
			State:  string(e.State),
			CoroID: HexID(e.CoroID),
			Stack:  HexID(e.Stack),
			Type:   e.Type,
			Msg:    e.Msg,
		},
	}
}

// Event converts a record back to an event.
func (r Record) Event() model.Event {
	return model.Event{
		Name:      r.Name,
		Timestamp: r.Timestamp,
		State:     model.CoroState(r.Fields.State),
		CoroID:    uint64(r.Fields.CoroID),
		Stack:     uint64(r.Fields.Stack),
		Type:      r.Fields.Type,
		Msg:       r.Fields.Msg,
	}
}

// JSONLReader reads traces exported as JSON Lines.
type JSONLReader struct{}

func NewJSONLReader() *JSONLReader {
	return &JSONLReader{}
}

func (r *JSONLReader) Name() string {
	return KindJSONL
}

func (r *JSONLReader) Read(ctx context.Context, path string, fn EventFunc) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrTraceNotFound, path)
		}
		return fmt.Errorf("cannot open trace %s: %w", path, err)
	}
	defer file.Close()

	util.LogDebug(fmt.Sprintf("Start reading JSONL trace: %s", path))
	return DecodeJSONL(ctx, file, fn)
}

// DecodeJSONL streams records from r. Blank lines are skipped; any malformed
// line aborts with its line number.
func DecodeJSONL(ctx context.Context, r io.Reader, fn EventFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	lineCount := 0
	for scanner.Scan() {
		lineCount++
		if lineCount%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec Record
		if err := sonic.UnmarshalString(line, &rec); err != nil {
			return fmt.Errorf("invalid JSONL record at line %d: %w", lineCount, err)
		}
		if rec.Name == "" {
			return fmt.Errorf("invalid JSONL record at line %d: missing event name", lineCount)
		}
		if err := fn(rec.Event()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning JSONL trace: %w", err)
	}
	util.LogDebug(fmt.Sprintf("JSONL trace read: %d lines", lineCount))
	return nil
}

// JSONLWriter writes events as JSON Lines.
type JSONLWriter struct {
	w *bufio.Writer
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: bufio.NewWriter(w)}
}

func (w *JSONLWriter) Write(event model.Event) error {
	data, err := sonic.Marshal(RecordFromEvent(event))
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *JSONLWriter) Flush() error {
	return w.w.Flush()
}
