package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/splitshot/splitshot/internal/config"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "splitshot",
		Short: "Split long screenshots into fixed-height slices",
		Long: `Splitshot splits a long image — a chat screenshot or a full-page
capture — into fixed-height slices and exports a selection of them as a
ZIP archive or a PDF.

Run "splitshot serve" for the web interface or "splitshot split" to
convert a file directly from the command line.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the YAML config file")

	// Add subcommands
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newSplitCmd(&configPath))

	return cmd
}
