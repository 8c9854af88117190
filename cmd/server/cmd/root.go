package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "plcbridge",
	Short: "Siemens LOGO! memory bridge over S7",
	Long: `Polls the VM image of a Siemens LOGO! (0BA7/0BA8) over S7, decodes named
blocks (I, Q, M, AI, AQ, AM, NI, NAI, NQ, NAQ, VB, VW, VD) and serves them
via REST, WebSocket and gRPC health.

Examples:
  plcbridge serve --config configs/config.yaml    # Run the bridge
  plcbridge resolve --family 0BA7 AI3 Q2 VB10.4  # Show block addresses
  plcbridge hash-password 's3cret'                # Hash for auth.users`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
