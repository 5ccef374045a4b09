// Command petctl inspects what hostsim recorded: the event journal, the
// SQLite index and state dumps.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dataDir string

var rootCmd = &cobra.Command{
	Use:           "petctl",
	Short:         "Inspect recorded pet tracking data",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "./data", "runtime data directory")
	rootCmd.AddCommand(eventsCmd, sessionsCmd, snapshotCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "petctl:", err)
		os.Exit(1)
	}
}
