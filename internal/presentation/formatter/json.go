package formatter

import (
	"io"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-coro-inspect/internal/core/coro"
	"github.com/penwyp/go-coro-inspect/internal/core/model"
)

type StackReport struct {
	ID    string        `json:"id"`
	Roots []*NodeReport `json:"roots"`
}

type NodeReport struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	Start      int64         `json:"start"`
	End        int64         `json:"end"`
	DurationNs int64         `json:"duration_ns"`
	Children   []*NodeReport `json:"children"`
}

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Format(w io.Writer, stacks *coro.Stacks) error {
	report, err := BuildReport(stacks)
	if err != nil {
		return err
	}
	data, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// BuildReport converts the stacks into their serialisable form. It fails on
// the first unclosed coroutine.
func BuildReport(stacks *coro.Stacks) ([]StackReport, error) {
	report := make([]StackReport, 0, stacks.Len())
	for _, stack := range stacks.List() {
		sr := StackReport{ID: model.ToHex(stack.ID), Roots: make([]*NodeReport, 0, len(stack.Roots))}
		for _, root := range stack.Roots {
			nr, err := nodeReport(root)
			if err != nil {
				return nil, err
			}
			sr.Roots = append(sr.Roots, nr)
		}
		report = append(report, sr)
	}
	return report, nil
}

func nodeReport(node *coro.Node) (*NodeReport, error) {
	d, err := node.Duration()
	if err != nil {
		return nil, err
	}
	end, _ := node.End()
	nr := &NodeReport{
		ID:         model.ToHex(node.ID),
		Name:       node.Name,
		Type:       node.Type,
		Start:      node.Start,
		End:        end,
		DurationNs: d,
		Children:   make([]*NodeReport, 0, len(node.Children)),
	}
	for _, child := range node.Children {
		cr, err := nodeReport(child)
		if err != nil {
			return nil, err
		}
		nr.Children = append(nr.Children, cr)
	}
	return nr, nil
}
