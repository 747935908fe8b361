package formatter

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/penwyp/go-coro-inspect/internal/core/coro"
	"github.com/penwyp/go-coro-inspect/internal/core/model"
	"github.com/penwyp/go-coro-inspect/internal/util"
)

// TextFormatter prints each stack header followed by an indented pre-order
// dump of its coroutines:
//
//	stack, roots 1, id 0x7F00
//	 fetch, ts 3.0ms
//	  decode, ts 1.0ms
type TextFormatter struct{}

func NewTextFormatter() *TextFormatter {
	return &TextFormatter{}
}

func (f *TextFormatter) Format(w io.Writer, stacks *coro.Stacks) error {
	var buf bytes.Buffer
	for _, stack := range stacks.List() {
		fmt.Fprintf(&buf, "stack, roots %d, id %s\n", len(stack.Roots), model.ToHex(stack.ID))
		err := stack.Walk(func(node *coro.Node, depth int) error {
			d, err := node.Duration()
			if err != nil {
				return err
			}
			fmt.Fprintf(&buf, "%s %s, ts %sms\n", strings.Repeat(" ", depth), node.Name, util.FormatMillis(d))
			return nil
		})
		if err != nil {
			return err
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}
