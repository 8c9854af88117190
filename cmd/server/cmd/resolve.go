package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/KevinKickass/OpenLogoBridge/internal/logo"
	"github.com/spf13/cobra"
)

var (
	resolveFamily string
	resolveJSON   bool
)

type resolvedBlock struct {
	Name        string `json:"name"`
	Region      string `json:"region,omitempty"`
	ByteAddress int    `json:"byte_address"`
	BitIndex    int    `json:"bit_index"`
	Kind        string `json:"kind,omitempty"`
	Class       string `json:"class,omitempty"`
	Error       string `json:"error,omitempty"`
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <block>...",
	Short: "Resolve block names to VM image addresses",
	Long: `Resolve block names against a device family without connecting to a PLC.

Examples:
  plcbridge resolve AI3 NQ12                 # 0BA8 layout
  plcbridge resolve --family 0BA7 VB10.4     # raw VM byte 10, bit 4
  plcbridge resolve --json Q1 M27`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveFamily, "family", "f", logo.Family0BA8, "device family (0BA7, 0BA8)")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "output JSON")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	family, err := logo.NewCatalog().Family(resolveFamily)
	if err != nil {
		return err
	}

	results := make([]resolvedBlock, 0, len(args))
	failed := 0
	for _, name := range args {
		ref, err := logo.Resolve(family, name)
		if err != nil {
			failed++
			results = append(results, resolvedBlock{Name: name, ByteAddress: -1, BitIndex: -1, Error: err.Error()})
			continue
		}
		results = append(results, resolvedBlock{
			Name:        ref.Name,
			Region:      string(ref.Region),
			ByteAddress: ref.ByteAddress,
			BitIndex:    ref.BitIndex,
			Kind:        ref.Kind.String(),
			Class:       logo.ClassOf(ref.Region).String(),
		})
	}

	out := cmd.OutOrStdout()
	if resolveJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "BLOCK\tREGION\tBYTE\tBIT\tKIND\tCLASS\n")
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s\n", r.Name, r.Error)
				continue
			}
			bit := "-"
			if r.Kind == "bit" {
				bit = fmt.Sprint(r.BitIndex)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", r.Name, r.Region, r.ByteAddress, bit, r.Kind, r.Class)
		}
		w.Flush()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d blocks could not be resolved on %s", failed, len(args), family.Name())
	}
	return nil
}
