package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aicare-console",
	Short: "AIcare - talk to the booking assistant from a terminal",
	Long: `aicare-console runs the AIcare booking dialogue in-process against the
configured model runtime and session store, and checks a running server's
gRPC health.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
