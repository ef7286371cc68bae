package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"penman/internal/config"
	"penman/internal/deps"
	"penman/internal/logging"
	"penman/internal/queue"
	"penman/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue counts, stage readiness, and the last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				manager := workflow.NewManager(cfg, store, logging.NewNop(), nil)
				status := manager.Status(cmd.Context())

				if jsonOutput {
					encoder := json.NewEncoder(cmd.OutOrStdout())
					encoder.SetIndent("", "  ")
					return encoder.Encode(statusPayload(status))
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				for _, line := range renderSectionHeader("Queue", colorize) {
					fmt.Fprintln(out, line)
				}
				if len(status.QueueStats) == 0 {
					fmt.Fprintln(out, statusIndent+"Queue is empty")
				}
				for _, st := range queue.AllStatuses() {
					count := status.QueueStats[st]
					if count == 0 {
						continue
					}
					fmt.Fprintln(out, renderStatusLine(string(st), statusInfo, strconv.Itoa(count), colorize))
				}

				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Tools", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, tool := range deps.CheckBinaries(deps.Requirements(cfg)) {
					switch {
					case tool.Available:
						fmt.Fprintln(out, renderStatusLine(tool.Name, statusOK, tool.Description, colorize))
					case tool.Optional:
						fmt.Fprintln(out, renderStatusLine(tool.Name, statusWarn, tool.Detail, colorize))
					default:
						fmt.Fprintln(out, renderStatusLine(tool.Name, statusError, tool.Detail, colorize))
					}
				}

				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Stages", colorize) {
					fmt.Fprintln(out, line)
				}
				names := make([]string, 0, len(status.StageHealth))
				for name := range status.StageHealth {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					health := status.StageHealth[name]
					if health.Ready {
						fmt.Fprintln(out, renderStatusLine(name, statusOK, "", colorize))
					} else {
						fmt.Fprintln(out, renderStatusLine(name, statusError, health.Detail, colorize))
					}
				}

				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Last run", colorize) {
					fmt.Fprintln(out, line)
				}
				run := status.LastRun
				fmt.Fprintln(out, renderStatusLine("state", statusInfo, string(run.State), colorize))
				if run.State != workflow.RunStateIdle {
					detail := fmt.Sprintf("%d completed, %d failed, %d cancelled of %d in %s",
						run.ItemsCompleted, run.ItemsFailed, run.ItemsCancelled, run.ItemsTotal,
						run.Duration.Round(time.Second))
					fmt.Fprintln(out, renderStatusLine("items", statusInfo, detail, colorize))
				}
				if status.LastError != "" {
					fmt.Fprintln(out, renderStatusLine("last error", statusError, status.LastError, colorize))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func statusPayload(status workflow.StatusSummary) map[string]any {
	stats := make(map[string]int, len(status.QueueStats))
	for st, count := range status.QueueStats {
		stats[string(st)] = count
	}
	stages := make(map[string]any, len(status.StageHealth))
	for name, health := range status.StageHealth {
		stages[name] = map[string]any{"ready": health.Ready, "detail": health.Detail}
	}
	payload := map[string]any{
		"running":     status.Running,
		"queue_stats": stats,
		"stages":      stages,
		"last_run": map[string]any{
			"run_id":          status.LastRun.RunID,
			"state":           string(status.LastRun.State),
			"items_total":     status.LastRun.ItemsTotal,
			"items_completed": status.LastRun.ItemsCompleted,
			"items_failed":    status.LastRun.ItemsFailed,
			"items_cancelled": status.LastRun.ItemsCancelled,
		},
	}
	if status.LastError != "" {
		payload["last_error"] = status.LastError
	}
	return payload
}
