// Package cli wires the detectlab commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmoreaux/detectlab/internal/config"
)

var cfg *config.Config

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "detectlab",
	Short: "Local control daemon for the AI-text detection study",
	Long: `Detectlab runs the experiment side of a human-subjects study on
AI-generated text detection. It keeps the trial state machine, talks to a
local vision model for text extraction and evaluation, records the event
log, and exposes a loopback HTTP bridge for the browser instrument.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("detectlab v0.3.0")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
