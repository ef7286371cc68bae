package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"penman/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the Penman configuration file",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var pathFlag string
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(pathFlag)
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			} else {
				expanded, err := config.ExpandPath(path)
				if err != nil {
					return err
				}
				path = expanded
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
				}
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample config to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&pathFlag, "path", "", "Where to write the sample config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			rows := [][]string{
				{"paths.output_dir", cfg.Paths.OutputDir},
				{"paths.staging_dir", cfg.Paths.StagingDir},
				{"paths.download_dir", cfg.Paths.DownloadDir},
				{"paths.log_dir", cfg.Paths.LogDir},
				{"transcription.model", cfg.Transcription.Model},
				{"transcription.language", cfg.Transcription.Language},
				{"transcription.device", cfg.Transcription.Device},
				{"transcription.segment_seconds", strconv.Itoa(cfg.Transcription.SegmentSeconds)},
				{"transcription.output_format", cfg.Transcription.OutputFormat},
				{"transcription.include_timestamps", yesNo(cfg.Transcription.IncludeTimestamps)},
				{"transcription.skip_failed_segments", yesNo(cfg.Transcription.SkipFailedSegments)},
				{"transcription.keep_segments", yesNo(cfg.Transcription.KeepSegments)},
				{"transcription.keep_downloads", yesNo(cfg.Transcription.KeepDownloads)},
				{"workflow.queue_poll_interval", strconv.Itoa(cfg.Workflow.QueuePollInterval)},
				{"workflow.error_retry_interval", strconv.Itoa(cfg.Workflow.ErrorRetryInterval)},
				{"workflow.run_policy", cfg.Workflow.RunPolicy},
				{"logging.format", cfg.Logging.Format},
				{"logging.level", cfg.Logging.Level},
				{"logging.retention_days", strconv.Itoa(cfg.Logging.RetentionDays)},
			}
			table := renderTable([]string{"Key", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}
