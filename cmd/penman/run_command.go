package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"penman/internal/config"
	"penman/internal/events"
	"penman/internal/logging"
	"penman/internal/queue"
	"penman/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process pending queue items",
		Long: `Process pending queue items in order: download remote sources, split
audio into segments, run inference, and write transcripts to the output
directory. Interrupting with Ctrl-C cancels the in-flight item and leaves
the rest of the queue pending.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return err
				}
				activeLog := filepath.Join(cfg.Paths.LogDir, "penman.log")
				logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
					Dir:     cfg.Paths.LogDir,
					Pattern: "*.log",
					Exclude: []string{activeLog},
				})
				hub := events.NewHub(0)
				hub.AddSink(eventLogSink{logger: logger})
				manager := workflow.NewManager(cfg, store, logger, hub)

				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				done := make(chan struct{})
				go func() {
					defer close(done)
					renderProgress(runCtx, hub, cmd.OutOrStdout())
				}()

				if watch {
					if err := manager.Start(runCtx); err != nil {
						stop()
						<-done
						return err
					}
					<-runCtx.Done()
					manager.Stop()
					<-done
					fmt.Fprintln(cmd.OutOrStdout(), "Watch stopped")
					return nil
				}

				summary, err := manager.Run(runCtx)
				stop()
				<-done
				if err != nil {
					return err
				}
				printRunSummary(cmd.OutOrStdout(), summary)
				if summary.State == workflow.RunStateStoppedOnError {
					return errors.New("run stopped after an item failed; use 'penman queue retry' to requeue it")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep polling for new items until interrupted")
	return cmd
}

// eventLogSink mirrors every published run event into the structured log at
// debug level.
type eventLogSink struct {
	logger *slog.Logger
}

func (s eventLogSink) Append(evt events.Event) {
	s.logger.Debug("run event",
		logging.String("event_kind", string(evt.Type)),
		logging.Int64(logging.FieldItemID, evt.ItemID),
		logging.String("event_stage", evt.Stage),
		logging.Float64("event_percent", evt.Percent),
	)
}

// renderProgress mirrors hub events onto the terminal until ctx ends.
func renderProgress(ctx context.Context, hub *events.Hub, out io.Writer) {
	var since uint64
	sampler := logging.NewProgressSampler(10)

	for {
		evts, next, err := hub.Fetch(ctx, since, 64, true)
		if err != nil {
			return
		}
		since = next
		for _, evt := range evts {
			switch evt.Type {
			case events.TypeLifecycle:
				switch evt.Status {
				case queue.StatusRunning:
					fmt.Fprintf(out, "Item %d started\n", evt.ItemID)
					sampler.Reset()
				case queue.StatusCompleted:
					fmt.Fprintf(out, "Item %d completed\n", evt.ItemID)
				case queue.StatusFailed:
					fmt.Fprintf(out, "Item %d failed: %s\n", evt.ItemID, evt.Error)
				case queue.StatusCancelled:
					fmt.Fprintf(out, "Item %d cancelled\n", evt.ItemID)
				}
			case events.TypeProgress:
				if evt.Stage == "batch" || evt.ItemID == 0 {
					continue
				}
				if sampler.ShouldLog(evt.Percent, evt.Stage, evt.Message) {
					fmt.Fprintf(out, "  [%3.0f%%] %s: %s\n", evt.Percent, evt.Stage, evt.Message)
				}
			}
		}
	}
}

func printRunSummary(out io.Writer, summary workflow.Summary) {
	fmt.Fprintf(out, "Run %s: %d completed, %d failed, %d cancelled of %d (%s)\n",
		summary.State,
		summary.ItemsCompleted,
		summary.ItemsFailed,
		summary.ItemsCancelled,
		summary.ItemsTotal,
		summary.Duration.Round(time.Second),
	)
}
