package formatter

import (
	"fmt"
	"io"

	"github.com/penwyp/go-coro-inspect/internal/core/coro"
)

// Output format names.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatChrome  = "chrome"
	FormatSummary = "summary"
)

// Formatter renders reconstructed stacks to w. Formatters render into memory
// first so a failing report writes nothing.
type Formatter interface {
	Format(w io.Writer, stacks *coro.Stacks) error
}

// New returns the formatter registered under name.
func New(name string) (Formatter, error) {
	switch name {
	case "", FormatText:
		return NewTextFormatter(), nil
	case FormatJSON:
		return NewJSONFormatter(), nil
	case FormatChrome:
		return NewChromeFormatter(), nil
	case FormatSummary:
		return NewSummaryFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", name)
	}
}
