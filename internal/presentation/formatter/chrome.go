package formatter

import (
	"io"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-coro-inspect/internal/core/coro"
	"github.com/penwyp/go-coro-inspect/internal/core/model"
)

// Trace Event Format phases used by the chrome output.
const (
	PhaseComplete = "X"
	PhaseMetadata = "M"
)

const chromePID = 1

// ChromeTrace is the JSON object format of the Chrome Trace Event Format,
// loadable in chrome://tracing and Perfetto.
type ChromeTrace struct {
	TraceEvents     []ChromeEvent `json:"traceEvents"`
	DisplayTimeUnit string        `json:"displayTimeUnit"`
}

type ChromeEvent struct {
	Name      string            `json:"name"`
	Category  string            `json:"cat,omitempty"`
	Phase     string            `json:"ph"`
	ProcessID int               `json:"pid"`
	ThreadID  int               `json:"tid"`
	TimeStamp float64           `json:"ts"`
	Duration  float64           `json:"dur,omitempty"`
	Args      map[string]string `json:"args,omitempty"`
}

// ChromeFormatter emits one complete event per coroutine, one thread per
// stack. Times are in microseconds.
type ChromeFormatter struct{}

func NewChromeFormatter() *ChromeFormatter {
	return &ChromeFormatter{}
}

func (f *ChromeFormatter) Format(w io.Writer, stacks *coro.Stacks) error {
	trace, err := BuildChromeTrace(stacks)
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(trace)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func BuildChromeTrace(stacks *coro.Stacks) (*ChromeTrace, error) {
	trace := &ChromeTrace{
		TraceEvents:     make([]ChromeEvent, 0),
		DisplayTimeUnit: "ms",
	}

	for i, stack := range stacks.List() {
		tid := i + 1
		trace.TraceEvents = append(trace.TraceEvents, ChromeEvent{
			Name:      "thread_name",
			Phase:     PhaseMetadata,
			ProcessID: chromePID,
			ThreadID:  tid,
			Args:      map[string]string{"name": "stack " + model.ToHex(stack.ID)},
		})

		err := stack.Walk(func(node *coro.Node, depth int) error {
			d, err := node.Duration()
			if err != nil {
				return err
			}
			trace.TraceEvents = append(trace.TraceEvents, ChromeEvent{
				Name:      node.Name,
				Category:  node.Type,
				Phase:     PhaseComplete,
				ProcessID: chromePID,
				ThreadID:  tid,
				TimeStamp: float64(node.Start) / 1e3,
				Duration:  float64(d) / 1e3,
				Args: map[string]string{
					"coro_id": model.ToHex(node.ID),
					"type":    node.Type,
				},
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return trace, nil
}
