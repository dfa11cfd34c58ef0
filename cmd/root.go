package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cassandra",
	Short: "Gossip-partitioned key-value store",
	Long: `A distributed key-value store with gossip-based membership, a
consistent-hash ring partitioner, an LSM storage engine, and a
quorum-reconciling coordinator.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags can be added here
}
