package reader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/penwyp/go-coro-inspect/internal/util"
)

// ErrBabeltraceNotFound is returned when the babeltrace binary is missing.
var ErrBabeltraceNotFound = errors.New("babeltrace not found")

// BabeltraceReader decodes CTF traces by running the babeltrace converter and
// parsing its text output.
type BabeltraceReader struct {
	binary string
	args   []string
}

// NewBabeltraceReader creates a reader running the given binary; an empty
// name uses "babeltrace" from PATH. babeltrace2 accepts the same options.
func NewBabeltraceReader(binary string) *BabeltraceReader {
	if binary == "" {
		binary = "babeltrace"
	}
	return &BabeltraceReader{
		binary: binary,
		args:   []string{"--clock-seconds", "--no-delta"},
	}
}

func (r *BabeltraceReader) Name() string {
	return KindBabeltrace
}

func (r *BabeltraceReader) Read(ctx context.Context, path string, fn EventFunc) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrTraceNotFound, path)
		}
		return fmt.Errorf("cannot open trace %s: %w", path, err)
	}
	if !util.IsReadable(path) {
		return fmt.Errorf("cannot open trace %s: permission denied", path)
	}

	bin, err := exec.LookPath(r.binary)
	if err != nil {
		return fmt.Errorf("%w (%s): install babeltrace or export the trace as JSONL: %v",
			ErrBabeltraceNotFound, r.binary, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := append(append([]string{}, r.args...), path)
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open babeltrace output: %w", err)
	}

	start := time.Now()
	util.LogDebugf("Running %s %s", bin, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start babeltrace: %w", err)
	}

	readErr := r.decode(stdout, fn)
	if readErr != nil {
		// stop babeltrace early, its exit status no longer matters
		cancel()
		_ = cmd.Wait()
		return readErr
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("cannot add trace %s: babeltrace failed: %w: %s",
			path, err, strings.TrimSpace(lastLines(stderr.String(), 5)))
	}

	util.LogDebug(fmt.Sprintf("babeltrace finished in %v", time.Since(start)))
	return nil
}

func (r *BabeltraceReader) decode(stdout io.Reader, fn EventFunc) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	lineCount := 0
	for scanner.Scan() {
		lineCount++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		event, err := ParseBabeltraceLine(line)
		if err != nil {
			return fmt.Errorf("babeltrace output line %d: %w", lineCount, err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading babeltrace output: %w", err)
	}
	util.LogDebug(fmt.Sprintf("Decoded %d babeltrace lines", lineCount))
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
