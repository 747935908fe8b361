package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/penwyp/go-coro-inspect/internal/analyzer"
	"github.com/penwyp/go-coro-inspect/internal/data/watcher"
	"github.com/penwyp/go-coro-inspect/internal/util"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <tracepath>",
		Short: "Re-run the analysis whenever the trace changes",
		Long: `Analyses the trace, then watches its files and analyses it again after every
burst of changes, until interrupted. Useful while an LTTng session is still
recording.`,
		Args: exactlyOneTrace,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("debounce") {
				d, err := opts.cfg.DebounceDuration()
				if err != nil {
					return err
				}
				debounce = d
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return opts.runWatch(ctx, cmd, args[0], debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce,
		"Quiet period after the last change before re-running")
	return cmd
}

func (o *rootOptions) runWatch(ctx context.Context, cmd *cobra.Command, tracePath string, debounce time.Duration) error {
	fw, err := watcher.NewFileWatcher(tracePath, debounce)
	if err != nil {
		return err
	}
	defer fw.Close()

	cfg := o.analyzerConfig(tracePath)
	cfg.Color = util.IsTerminal(cmd.OutOrStdout())
	a := analyzer.New(cfg).WithOutput(cmd.OutOrStdout())

	analyze := func(ctx context.Context) {
		if err := a.Run(ctx); err != nil && ctx.Err() == nil {
			// a trace still being written is often not well formed yet
			util.LogWarnf("Analysis failed: %v", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "analysis failed: %v\n", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		analyze(gctx)
		for {
			select {
			case <-gctx.Done():
				return nil
			case change, ok := <-fw.Changes():
				if !ok {
					if gctx.Err() != nil {
						return nil
					}
					util.LogErrorf("Watcher on %s stopped unexpectedly", tracePath)
					return fmt.Errorf("watcher on %s stopped", tracePath)
				}
				util.LogInfof("Trace changed (%d files), re-running analysis", len(change.Paths))
				fmt.Fprintf(cmd.OutOrStdout(), "\n# %s: %d files changed\n",
					change.At.Format(time.RFC3339), len(change.Paths))
				analyze(gctx)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		return fw.Close()
	})

	err = g.Wait()
	util.LogInfo("Watch stopped")
	return err
}
