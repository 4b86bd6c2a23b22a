package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmoreaux/detectlab/internal/eventlog"
)

var exportOut string

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the event log as CSV",
	Long: `Export writes every recorded event as a CSV file in the analysis
layout, one row per event with the full column set.

Example:
  detectlab export
  detectlab export --out session_42.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Store.Logs(cmd.Context())
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = fmt.Sprintf("experiment_log_%s.csv", time.Now().UTC().Format("2006-01-02_15-04-05"))
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()

		if err := eventlog.WriteCSV(f, entries); err != nil {
			return err
		}

		fmt.Printf("Exported %d entries to %s\n", len(entries), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default: timestamped name)")
}
