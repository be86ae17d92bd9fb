package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dashpay/functest-runner/internal/ports"
)

var (
	portSeed   int
	portNodes  int
	portOutput string
)

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Show the ports a test with a given port seed uses",
	Long: `Print the p2p and rpc ports of every node of a test started with
--portseed. Useful to find out which test holds a port.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().IntVar(&portSeed, "seed", 0, "port seed of the test")
	portsCmd.Flags().IntVar(&portNodes, "nodes", 4, "number of nodes to show")
	portsCmd.Flags().StringVarP(&portOutput, "output", "o", "table", "output format: table or json")
	portsCmd.MarkFlagRequired("seed")
}

func runPorts(cmd *cobra.Command, args []string) error {
	pairs, err := ports.Table(portSeed, portNodes)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if portOutput == "json" {
		output, err := json.MarshalIndent(pairs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Node", "P2P", "RPC")
	for _, p := range pairs {
		table.Append(fmt.Sprintf("%d", p.Node), fmt.Sprintf("%d", p.P2P), fmt.Sprintf("%d", p.RPC))
	}
	table.Render()
	return nil
}
