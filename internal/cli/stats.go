package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmoreaux/detectlab/internal/score"
)

var statsJSON bool

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the recorded session",
	Long: `Stats aggregates the event log into session-level numbers: trials,
decisions, accuracy against ground truth, agreement with the model,
confidence and decision latency.

Example:
  detectlab stats
  detectlab stats --json`,
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

		summary := score.NewScorer().Calculate(entries)

		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		fmt.Printf("Trials:       %d\n", summary.Trials)
		fmt.Printf("Decisions:    %d\n", summary.Decisions)
		if summary.Judged > 0 {
			fmt.Printf("Accuracy:     %d/%d (%.0f%%)\n", summary.Correct, summary.Judged, summary.Accuracy*100)
		} else {
			fmt.Printf("Accuracy:     no ground truth recorded\n")
		}
		fmt.Printf("Confidence:   %.2f mean\n", summary.MeanConfidence)
		fmt.Printf("Model lean:   %d accepted, %d refused, %d ignored\n",
			summary.Accepted, summary.Refused, summary.Ignored)
		if summary.TimedDecisions > 0 {
			fmt.Printf("Latency:      %dms mean over %d timed decisions\n",
				summary.MeanDecisionMS, summary.TimedDecisions)
		}
		fmt.Printf("Evaluations:  %d", summary.Evaluations)
		if len(summary.Uncertainty) > 0 {
			fmt.Printf(" (")
			first := true
			for _, band := range []string{"low", "medium", "high"} {
				if n := summary.Uncertainty[band]; n > 0 {
					if !first {
						fmt.Printf(", ")
					}
					fmt.Printf("%d %s", n, band)
					first = false
				}
			}
			fmt.Printf(")")
		}
		fmt.Println()

		for cond, bc := range summary.ByCondition {
			if bc.Judged > 0 {
				fmt.Printf("  %-12s %d decisions, %d/%d correct\n", cond+":", bc.Decisions, bc.Correct, bc.Judged)
			} else {
				fmt.Printf("  %-12s %d decisions\n", cond+":", bc.Decisions)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit the summary as JSON")
}
