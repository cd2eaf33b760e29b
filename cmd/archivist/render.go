package main

import (
	"fmt"
	"time"

	"github.com/harunnryd/archivist/internal/config"
	"github.com/harunnryd/archivist/internal/naming"

	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the remote filename a conversation would be archived under",
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		user, _ := cmd.Flags().GetString("user")
		chatID, _ := cmd.Flags().GetString("chat-id")
		template, _ := cmd.Flags().GetString("template")
		at, _ := cmd.Flags().GetString("at")

		if chatID == "" {
			return fmt.Errorf("--chat-id is required")
		}
		if template == "" && cfg != nil {
			template = cfg.Archive.FilenameTemplate
		}
		if template == "" {
			template = config.DefaultArchiveFilenameTemplate
		}

		now := time.Now()
		if at != "" {
			parsed, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("--at must be RFC 3339: %w", err)
			}
			now = parsed
		}

		fmt.Fprintln(cmd.OutOrStdout(), naming.Render(template, model, user, chatID, now))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().String("model", "", "model id, e.g. llama3:latest")
	renderCmd.Flags().String("user", "", "user name")
	renderCmd.Flags().String("chat-id", "", "conversation id")
	renderCmd.Flags().String("template", "", "filename template (default from config)")
	renderCmd.Flags().String("at", "", "render time in RFC 3339 (default now)")
}
