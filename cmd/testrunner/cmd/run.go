package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dashpay/functest-runner/internal/runner"
	"github.com/dashpay/functest-runner/internal/shutdown"
	"github.com/dashpay/functest-runner/internal/tracing"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [flags] [tests] [-- script options]",
	Short: "Run functional tests (default command)",
	Long: `Run the selected functional tests in parallel, retry failures up to
--attempts times and print a summary of the results.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	defaults := runner.DefaultOptions()
	flags := cmd.PersistentFlags()

	flags.Bool("ansi", term.IsTerminal(int(os.Stdout.Fd())), "use ANSI colors and dots in output (enabled by default when standard output is a TTY)")
	flags.IntP("attempts", "a", defaults.Attempts, "how many attempts should be allowed for the non-deterministic test suite")
	flags.IntP("combinedlogslen", "c", 0, "on failure, print a log (of length n lines) to the console, combined from the test framework and all test nodes")
	flags.Bool("coverage", false, "generate a basic coverage report for the RPC interface")
	flags.Bool("ci", false, "run checks and code that are usually only enabled in a continuous integration environment")
	flags.StringP("exclude", "x", "", "specify a comma-separated-list of scripts to exclude")
	flags.Bool("extended", false, "run the extended test suite in addition to the basic tests")
	flags.IntP("jobs", "j", defaults.Jobs, "how many test scripts to run in parallel")
	flags.BoolP("keepcache", "k", false, "retain the cache from the previous testrun instead of flushing it on startup")
	flags.StringP("tmpdirprefix", "t", defaults.TmpDirPrefix, "root directory for datadirs")
	flags.BoolP("failfast", "F", false, "stop execution after the first test failure")
	flags.String("filter", "", "filter scripts to run by regular expression")
	flags.String("interpreter", defaults.Interpreter, "interpreter used to run the test scripts")
	flags.String("metrics-file", "", "write Prometheus metrics of the run to this textfile")
	flags.String("status-addr", "", "serve run status and metrics on this address, e.g. 127.0.0.1:9099")
	flags.Duration("poll-interval", defaults.PollInterval, "how often running tests are checked for completion")
	flags.String("otlp-endpoint", "", "export traces to this OTLP/HTTP endpoint, e.g. http://localhost:4318 (also enabled by "+tracing.EndpointEnv+")")
}

// buildOptions collects the run options from flags, environment and config.
func buildOptions(args []string) runner.Options {
	opts := runner.DefaultOptions()
	opts.Tests, opts.PassOn = runner.SplitArgs(args)

	opts.ConfigFile = viper.GetString("configfile")
	opts.SuiteFile = viper.GetString("suite-file")
	opts.Interpreter = viper.GetString("interpreter")
	opts.Ansi = viper.GetBool("ansi")
	opts.Attempts = viper.GetInt("attempts")
	opts.Jobs = viper.GetInt("jobs")
	opts.CombinedLogsLen = viper.GetInt("combinedlogslen")
	opts.PollInterval = viper.GetDuration("poll-interval")
	opts.Coverage = viper.GetBool("coverage")
	opts.CI = viper.GetBool("ci")
	opts.Extended = viper.GetBool("extended")
	opts.KeepCache = viper.GetBool("keepcache")
	opts.FailFast = viper.GetBool("failfast")
	opts.Exclude = viper.GetString("exclude")
	opts.Filter = viper.GetString("filter")
	opts.TmpDirPrefix = viper.GetString("tmpdirprefix")
	opts.MetricsFile = viper.GetString("metrics-file")
	opts.StatusAddr = viper.GetString("status-addr")
	return opts
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	stop := shutdown.New(5*time.Second, logger)
	defer stop.Shutdown()
	stop.Register("log file", shutdown.CloseResource(logger))

	ctx, cancel := stop.Context(context.Background())
	defer cancel()

	r := runner.New(buildOptions(args), cmd.OutOrStdout(), logger)

	cfg := tracing.ConfigFromEnv("testrunner", Version, viper.GetString("otlp-endpoint"), os.Getenv)
	cfg.RunID = r.RunID()
	tp, err := tracing.Init(ctx, cfg)
	if err != nil {
		return err
	}
	stop.Register("tracer", tp.Shutdown)

	code, err := r.WithTracer(tp).Run(ctx)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
