package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dashpay/functest-runner/internal/suite"
)

var listOutput string

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list [tests]",
	Short: "List the tests a run would execute",
	Long:  `Apply the test selection (names, --extended, --exclude, --filter) and print the resulting test list without running anything.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "output format: table or json")
}

type listEntry struct {
	Position int      `json:"position"`
	Script   string   `json:"script"`
	Args     []string `json:"args"`
	Suite    string   `json:"suite"`
}

func runList(cmd *cobra.Command, args []string) error {
	var (
		suites *suite.Suites
		err    error
	)
	if path := viper.GetString("suite-file"); path != "" {
		suites, err = suite.Load(path)
	} else {
		suites, err = suite.Default()
	}
	if err != nil {
		return err
	}

	opts := buildOptions(args)
	tests, warnings, err := suites.Select(suite.Selection{
		Tests:    opts.Tests,
		Extended: opts.Extended,
		Exclude:  opts.Exclude,
		Filter:   opts.Filter,
	})
	out := cmd.OutOrStdout()
	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "WARNING! %s\n", w)
	}
	if err != nil {
		return err
	}

	extended := make(map[string]bool, len(suites.Extended))
	for _, spec := range suites.Extended {
		extended[spec] = true
	}

	entries := make([]listEntry, 0, len(tests))
	for i, spec := range tests {
		fields := strings.Fields(spec)
		name := "base"
		if extended[spec] {
			name = "extended"
		}
		entries = append(entries, listEntry{Position: i + 1, Script: fields[0], Args: fields[1:], Suite: name})
	}

	if listOutput == "json" {
		output, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("#", "Script", "Arguments", "Suite")
	for _, e := range entries {
		table.Append(fmt.Sprintf("%d", e.Position), e.Script, strings.Join(e.Args, " "), e.Suite)
	}
	table.Render()
	fmt.Fprintf(out, "%d tests\n", len(entries))
	return nil
}
