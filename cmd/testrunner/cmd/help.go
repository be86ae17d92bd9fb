package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dashpay/functest-runner/internal/runner"
)

// installHelp extends the help of the run commands with the help of the
// first selected test script.
func installHelp() {
	defaultHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		defaultHelp(c, args)
		if c != rootCmd && c != runCmd {
			return
		}

		initConfig()
		logger, err := newLogger()
		if err != nil {
			return
		}
		defer logger.Close()
		out := c.OutOrStdout()
		fmt.Fprintln(out, "\nHelp text and arguments for individual test script:")
		r := runner.New(buildOptions(c.Flags().Args()), out, logger)
		if err := r.ScriptHelp(context.Background()); err != nil {
			logger.Debug("No test script help available: " + err.Error())
		}
	})
}
