package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dashpay/functest-runner/internal/logging"
)

var cfgFile string

// ExitError carries a non-zero exit code of a run that already reported
// its outcome.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "testrunner [flags] [tests] [-- script options]",
	Short: "Run the functional test suite of a Dash node",
	Long: `testrunner runs the functional test scripts of a Dash node in parallel.

Arguments after "--" that start with two dashes are passed on to every test
script. For a description of the arguments recognized by test scripts, see
test/functional/test_framework/test_framework.py.`,
	Args:          cobra.ArbitraryArgs,
	RunE:          runRun,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.testrunner/config.yaml)")
	rootCmd.PersistentFlags().String("configfile", "test/config.ini", "config.ini generated by the build")
	rootCmd.PersistentFlags().String("suite-file", "", "YAML test lists replacing the built-in ones")
	rootCmd.PersistentFlags().String("log-format", "plain", "log format: plain, text or json")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "only print dots, results summary and failure logs")
	rootCmd.PersistentFlags().String("log-file", "", "also write log entries to this file")

	addRunFlags(rootCmd)
	viper.BindPFlags(rootCmd.PersistentFlags())

	installHelp()
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".testrunner"))
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TESTRUNNER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

// newLogger builds the logger from --quiet, --log-format and --log-file.
func newLogger() (*logging.Logger, error) {
	format, err := logging.ParseFormat(viper.GetString("log-format"))
	if err != nil {
		return nil, err
	}
	level := logging.DEBUG
	if viper.GetBool("quiet") {
		level = logging.INFO
	}
	logger := logging.NewLogger(level, format)
	logger.SetOutput(os.Stderr)
	if path := viper.GetString("log-file"); path != "" {
		if err := logger.TeeToFile(path); err != nil {
			return nil, err
		}
	}
	return logger, nil
}
