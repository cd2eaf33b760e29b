package main

import (
	"fmt"
	"strings"

	"github.com/harunnryd/archivist/internal/archiver"
	"github.com/harunnryd/archivist/internal/daemon/components"
	"github.com/harunnryd/archivist/internal/history"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one archive cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *session) error {
			arch, err := components.BuildArchiver(cfg, s.client, s.stateDeps())
			if err != nil {
				return err
			}
			summary, err := arch.Cycle(s.ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived=%d skipped=%d excluded=%d failed=%d quarantined=%d\n",
				summary.Archived, summary.Skipped, summary.Excluded, summary.Failed, summary.Quarantined)
			return nil
		})
	},
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Run one reap cycle and exit",
	Long:  `Removes archived transcripts whose chat no longer exists upstream, locally and from their knowledge collection. With --dry-run nothing is changed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return withSession(cmd, func(s *session) error {
			deps := s.stateDeps()
			if dryRun {
				deps.History = history.Discard{}
			}
			rp, err := components.BuildReaper(cfg, s.client, deps, dryRun)
			if err != nil {
				return err
			}
			summary, err := rp.Cycle(s.ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d kept=%d unknown=%d reaped=%d dry_run=%t\n",
				summary.Checked, summary.Kept, summary.Unknown, summary.Reaped, dryRun)
			return nil
		})
	},
}

var notifyCmd = &cobra.Command{
	Use:   "notify <chat-id>",
	Short: "Archive one conversation now, as the /notify endpoint does",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		username, _ := cmd.Flags().GetString("username")
		return withSession(cmd, func(s *session) error {
			arch, err := components.BuildArchiver(cfg, s.client, s.stateDeps())
			if err != nil {
				return err
			}
			res := arch.ArchiveOne(s.ctx, archiver.NotifyRequest{
				ChatID:   strings.TrimSpace(args[0]),
				Model:    model,
				Username: username,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", res.Status, res.Detail)
			if res.Status == archiver.StatusError {
				return fmt.Errorf("archive %s: %s", args[0], res.Detail)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reapCmd)
	rootCmd.AddCommand(notifyCmd)
	reapCmd.Flags().Bool("dry-run", false, "only log what would be removed")
	notifyCmd.Flags().String("model", "", "override the model from the transcript")
	notifyCmd.Flags().String("username", "", "override the user from the transcript")
}
