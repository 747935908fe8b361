package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-coro-inspect/internal/analyzer"
	"github.com/penwyp/go-coro-inspect/internal/data/reader"
	"github.com/penwyp/go-coro-inspect/internal/util"
)

func newDumpCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <tracepath>",
		Short: "Print the decoded beacon events as JSON Lines",
		Long: `Decodes the trace and prints its coroutine beacon events, one JSON object per
line. The output can be read back with --reader jsonl.`,
		Args: exactlyOneTrace,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runDump(cmd, args[0])
		},
	}
}

func (o *rootOptions) runDump(cmd *cobra.Command, tracePath string) error {
	a := analyzer.New(o.analyzerConfig(tracePath))
	events, err := a.LoadEvents(cmd.Context())
	if err != nil {
		return err
	}

	w := reader.NewJSONLWriter(cmd.OutOrStdout())
	for _, event := range events {
		if err := w.Write(event); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	util.LogInfof("Dumped %d events from %s", len(events), tracePath)
	return nil
}
