package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/archivist/internal/daemon"
	"github.com/harunnryd/archivist/internal/daemon/components"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the archive and reap loops",
	Long:  `Runs the archive loop, the reap loop and the HTTP endpoints (/health, /notify) until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		forceClean, _ := cmd.Flags().GetBool("force-clean-locks")

		layout, err := currentLayout()
		if err != nil {
			return err
		}
		closeLogs, err := openLogs(layout)
		if err != nil {
			return err
		}
		defer closeLogs()

		daemonMgr, err := daemon.NewDaemon(cfg, layout)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}
		daemonMgr.SetForceCleanup(forceClean)

		storeComp := components.NewStoreComponent(layout)
		remoteComp := components.NewRemoteComponent(cfg)
		archiverComp := components.NewArchiverComponent(cfg, storeComp, remoteComp)

		daemonMgr.AddComponent(storeComp)
		daemonMgr.AddComponent(remoteComp)
		daemonMgr.AddComponent(archiverComp)
		if cfg.Reap.Enabled {
			daemonMgr.AddComponent(components.NewReaperComponent(cfg, storeComp, remoteComp))
		} else {
			slog.Info("Reap loop disabled")
		}
		if cfg.Server.Enabled {
			daemonMgr.AddComponent(components.NewHTTPServerComponent(daemonMgr, archiverComp, &cfg.Server, version))
		}

		slog.Info("Archivist starting up...", "version", version, "memory_dir", layout.Memory, "webui", cfg.WebUI.BaseURL)
		if err := daemonMgr.Start(context.Background()); err != nil {
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Archivist stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().Int("server.port", 9000, "HTTP port for /health and /notify")
	daemonCmd.Flags().Bool("force-clean-locks", false, "Force cleanup of stale lock files (default: warn-only)")
}
