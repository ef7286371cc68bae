package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"penman/internal/config"
	"penman/internal/media"
	"penman/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var titleFlag string

	cmd := &cobra.Command{
		Use:   "add <source>...",
		Short: "Add local audio files or URLs to the transcription queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				for _, source := range args {
					kind := classifySource(source)
					if kind == queue.SourceLocal {
						expanded, err := config.ExpandPath(source)
						if err != nil {
							return err
						}
						if _, err := os.Stat(expanded); err != nil {
							return fmt.Errorf("source file not found: %s", source)
						}
						if err := media.ValidateInputPath(expanded); err != nil {
							return err
						}
						source = expanded
					}

					item, err := store.Enqueue(cmd.Context(), source, kind, titleFlag)
					if errors.Is(err, queue.ErrDuplicateSource) {
						fmt.Fprintf(cmd.OutOrStdout(), "Skipped duplicate: %s\n", source)
						continue
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Added #%d %s\n", item.ID, item.DisplayLabel())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&titleFlag, "title", "", "Display title for the queued item")
	return cmd
}

func classifySource(source string) queue.SourceKind {
	lower := strings.ToLower(strings.TrimSpace(source))
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return queue.SourceRemote
	}
	return queue.SourceLocal
}
