package formatter

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/penwyp/go-coro-inspect/internal/core/coro"
	"github.com/penwyp/go-coro-inspect/internal/core/model"
	"github.com/penwyp/go-coro-inspect/internal/util"
)

// NameStats aggregates the executions of one coroutine name and type.
type NameStats struct {
	Name  string
	Type  string
	Count int
	Total int64 // ns
	Max   int64 // ns
}

// Mean returns the mean duration in nanoseconds.
func (s NameStats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Total) / float64(s.Count)
}

// StackStats describes one stack of the trace.
type StackStats struct {
	ID       uint64
	Roots    int
	Coros    int
	MaxDepth int
}

// SummaryFormatter prints duration statistics per coroutine name, then one
// line per stack.
type SummaryFormatter struct {
	color  bool
	sorter *StatsSorter
}

// NewSummaryFormatter creates a new instance of SummaryFormatter.
func NewSummaryFormatter() *SummaryFormatter {
	return &SummaryFormatter{sorter: NewStatsSorter()}
}

// WithColor enables terminal colours in the headers.
func (f *SummaryFormatter) WithColor(enabled bool) *SummaryFormatter {
	f.color = enabled
	return f
}

// WithSorter changes the order of the per-name rows.
func (f *SummaryFormatter) WithSorter(sorter *StatsSorter) *SummaryFormatter {
	if sorter != nil {
		f.sorter = sorter
	}
	return f
}

// Summarize computes the per-name statistics sorted by total duration,
// longest first, and the per-stack statistics in stack order.
func Summarize(stacks *coro.Stacks) ([]NameStats, []StackStats, error) {
	byKey := make(map[string]*NameStats)
	var names []*NameStats
	var stackStats []StackStats

	for _, stack := range stacks.List() {
		ss := StackStats{ID: stack.ID, Roots: len(stack.Roots)}
		err := stack.Walk(func(node *coro.Node, depth int) error {
			d, err := node.Duration()
			if err != nil {
				return err
			}
			key := node.Type + "\x00" + node.Name
			ns, ok := byKey[key]
			if !ok {
				ns = &NameStats{Name: node.Name, Type: node.Type}
				byKey[key] = ns
				names = append(names, ns)
			}
			ns.Count++
			ns.Total += d
			if d > ns.Max {
				ns.Max = d
			}

			ss.Coros++
			if depth+1 > ss.MaxDepth {
				ss.MaxDepth = depth + 1
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		stackStats = append(stackStats, ss)
	}

	result := make([]NameStats, len(names))
	for i, ns := range names {
		result[i] = *ns
	}
	NewStatsSorter().Sort(result)
	return result, stackStats, nil
}

// Format writes the summary report.
func (f *SummaryFormatter) Format(w io.Writer, stacks *coro.Stacks) error {
	names, stackStats, err := Summarize(stacks)
	if err != nil {
		return err
	}
	f.sorter.Sort(names)

	var buf bytes.Buffer
	totalCoros := 0
	for _, ss := range stackStats {
		totalCoros += ss.Coros
	}
	fmt.Fprintf(&buf, "%s\n", util.Colorize("Coroutine Summary", util.ColorCyan, f.color))
	counts := fmt.Sprintf("Stacks: %s, coroutines: %s", util.FormatNumber(len(stackStats)), util.FormatNumber(totalCoros))
	fmt.Fprintf(&buf, "%s\n\n", util.Colorize(counts, util.ColorYellow, f.color))

	table := NewTable("Name", "Type", "Count", "Total (ms)", "Mean (ms)", "Max (ms)").AlignRight(2, 3, 4, 5)
	for _, ns := range names {
		table.AddRow(
			ns.Name,
			ns.Type,
			util.FormatNumber(ns.Count),
			formatMs(float64(ns.Total)),
			formatMs(ns.Mean()),
			formatMs(float64(ns.Max)),
		)
	}
	table.Render(&buf, f.color)
	buf.WriteByte('\n')

	stackTable := NewTable("Stack", "Roots", "Coroutines", "Max depth").AlignRight(1, 2, 3)
	for _, ss := range stackStats {
		stackTable.AddRow(
			model.ToHex(ss.ID),
			util.FormatNumber(ss.Roots),
			util.FormatNumber(ss.Coros),
			strconv.Itoa(ss.MaxDepth),
		)
	}
	stackTable.Render(&buf, f.color)

	_, err = w.Write(buf.Bytes())
	return err
}

func formatMs(nanos float64) string {
	return fmt.Sprintf("%.3f", nanos/util.NanosPerMilli)
}
