package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// logsCmd represents the logs command
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect and manage the event log",
}

var logsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of recorded events",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.Store.LogCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(count)
		return nil
	},
}

var logsClearForce bool

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every recorded event",
	Long:  `Clear removes all event log entries. This cannot be undone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.Store.LogCount(cmd.Context())
		if err != nil {
			return err
		}
		if count == 0 {
			fmt.Println("Event log is already empty.")
			return nil
		}

		if !logsClearForce {
			fmt.Printf("Delete all %d event log entries? [y/N] ", count)
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := a.Events.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Deleted %d entries.\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsCountCmd)
	logsCmd.AddCommand(logsClearCmd)
	logsClearCmd.Flags().BoolVar(&logsClearForce, "force", false, "skip confirmation")
}
