// Package reader decodes coroutine traces into a stream of model.Event.
package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
	"github.com/penwyp/go-coro-inspect/internal/data/scanner"
)

// Reader kinds.
const (
	KindAuto       = "auto"
	KindBabeltrace = "babeltrace"
	KindJSONL      = "jsonl"
)

var (
	ErrTraceNotFound    = errors.New("trace not found")
	ErrUnsupportedTrace = errors.New("unsupported trace format")
)

// EventFunc receives events in trace order. Returning an error stops reading.
type EventFunc func(event model.Event) error

// Reader streams the events of a trace.
type Reader interface {
	Name() string
	Read(ctx context.Context, path string, fn EventFunc) error
}

// Options configures the readers built by Open.
type Options struct {
	Babeltrace string // babeltrace binary
}

// Open returns the reader of the given kind for path. KindAuto inspects the
// path to pick one.
func Open(kind, path string, opts Options) (Reader, error) {
	if kind == "" || kind == KindAuto {
		detected, err := Detect(path)
		if err != nil {
			return nil, err
		}
		kind = detected
	}

	switch kind {
	case KindBabeltrace:
		return NewBabeltraceReader(opts.Babeltrace), nil
	case KindJSONL:
		return NewJSONLReader(), nil
	default:
		return nil, fmt.Errorf("%w: unknown reader %q", ErrUnsupportedTrace, kind)
	}
}

// Detect picks the reader kind for a trace path: directories holding a CTF
// metadata file go through babeltrace, .jsonl/.json files through the JSONL
// reader.
func Detect(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrTraceNotFound, path)
		}
		return "", fmt.Errorf("cannot open trace %s: %w", path, err)
	}

	result, err := scanner.NewTraceScanner(path).Scan()
	if err != nil {
		return "", fmt.Errorf("cannot scan trace %s: %w", path, err)
	}

	if result.IsDir {
		if result.IsCTF() {
			return KindBabeltrace, nil
		}
		return "", fmt.Errorf("%w: %s has no CTF metadata", ErrUnsupportedTrace, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json", ".ndjson":
		return KindJSONL, nil
	}
	if filepath.Base(path) == scanner.MetadataFile {
		return KindBabeltrace, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedTrace, path)
}

// ReadAll collects every event of a trace, keeping only those named
// eventName when it is not empty.
func ReadAll(ctx context.Context, r Reader, path, eventName string) ([]model.Event, error) {
	var events []model.Event
	err := r.Read(ctx, path, func(event model.Event) error {
		if eventName == "" || event.Name == eventName {
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
