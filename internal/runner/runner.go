// Package runner drives a complete functional test run: test selection,
// preflight checks, the scheduler loop and the final summary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dashpay/functest-runner/internal/api"
	"github.com/dashpay/functest-runner/internal/combine"
	"github.com/dashpay/functest-runner/internal/config"
	"github.com/dashpay/functest-runner/internal/coverage"
	"github.com/dashpay/functest-runner/internal/discover"
	"github.com/dashpay/functest-runner/internal/job"
	"github.com/dashpay/functest-runner/internal/logging"
	"github.com/dashpay/functest-runner/internal/observe"
	"github.com/dashpay/functest-runner/internal/report"
	"github.com/dashpay/functest-runner/internal/scheduler"
	"github.com/dashpay/functest-runner/internal/shutdown"
	"github.com/dashpay/functest-runner/internal/suite"
	"github.com/dashpay/functest-runner/internal/tracing"
)

// LeaveDanglingEnv keeps still running tests alive after a fail-fast exit.
const LeaveDanglingEnv = "CI_FAILFAST_TEST_LEAVE_DANGLING"

// ErrFrameworkTests is returned when the framework unit tests fail.
var ErrFrameworkTests = errors.New("early exiting after failure in TestFramework unit tests")

// Runner executes one test run.
type Runner struct {
	opts   Options
	out    io.Writer
	logger *logging.Logger
	style  report.Style
	runID  string
	now    func() time.Time
	tracer *tracing.Provider
}

// New creates a runner printing to out.
func New(opts Options, out io.Writer, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Interpreter == "" {
		opts.Interpreter = scheduler.DefaultInterpreter
	}
	runID := uuid.New().String()
	return &Runner{
		opts:   opts,
		out:    out,
		logger: logger.WithField("run_id", runID),
		style:  report.NewStyle(opts.Ansi, opts.Unicode),
		runID:  runID,
		now:    time.Now,
	}
}

// WithTracer traces the run, its test attempts and the status server with p.
func (r *Runner) WithTracer(p *tracing.Provider) *Runner {
	r.tracer = p
	return r
}

// RunID identifies the run in logs and metrics.
func (r *Runner) RunID() string {
	return r.runID
}

func (r *Runner) warn(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "%s %s\n", r.style.Bold("WARNING!"), fmt.Sprintf(format, args...))
}

// plan is a validated test selection.
type plan struct {
	cfg      *config.Config
	suites   *suite.Suites
	testList []string
	passOn   []string
}

// prepare loads config.ini and the test lists and selects the tests of the
// run. A non-zero exit code without error means the user was told why.
func (r *Runner) prepare() (*plan, int, error) {
	cfg, err := config.Load(r.opts.ConfigFile)
	if err != nil {
		return nil, 1, err
	}
	if !cfg.DaemonEnabled() {
		fmt.Fprintln(r.out, "No functional tests to run.")
		fmt.Fprintln(r.out, "Rerun ./configure with --with-daemon and then make")
		return nil, 1, nil
	}

	var suites *suite.Suites
	if r.opts.SuiteFile != "" {
		suites, err = suite.Load(r.opts.SuiteFile)
	} else {
		suites, err = suite.Default()
	}
	if err != nil {
		return nil, 1, err
	}

	testList, warnings, err := suites.Select(suite.Selection{
		Tests:    r.opts.Tests,
		Extended: r.opts.Extended,
		Exclude:  r.opts.Exclude,
		Filter:   r.opts.Filter,
	})
	for _, w := range warnings {
		r.warn("%s", w)
	}
	if errors.Is(err, suite.ErrEmptySelection) {
		fmt.Fprintln(r.out, "No valid test scripts specified. Check that your test is in one "+
			"of the test lists, or run the test runner with no arguments to run all tests")
		return nil, 1, nil
	}
	if err != nil {
		return nil, 1, err
	}

	passOn := append(append([]string{}, r.opts.PassOn...), cfg.Flag())
	return &plan{cfg: cfg, suites: suites, testList: testList, passOn: passOn}, 0, nil
}

// ScriptHelp prints the help of the first selected test script.
func (r *Runner) ScriptHelp(ctx context.Context) error {
	p, code, err := r.prepare()
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("no test script to show help for")
	}

	script := strings.Fields(p.testList[0])[0]
	cmd := exec.CommandContext(ctx, r.opts.Interpreter, filepath.Join(p.cfg.TestsDir(), script), "-h")
	cmd.Stdout = r.out
	cmd.Stderr = r.out
	return cmd.Run()
}

// Run executes the run and returns the process exit code.
func (r *Runner) Run(ctx context.Context) (int, error) {
	p, code, err := r.prepare()
	if err != nil || code != 0 {
		return code, err
	}

	tmpDir := filepath.Join(r.opts.TmpDirPrefix, "test_runner_∋_🏃_"+r.now().Format("20060102_150405"))
	if err := os.MkdirAll(r.opts.TmpDirPrefix, 0o755); err != nil {
		return 1, fmt.Errorf("failed to create tmpdir prefix: %w", err)
	}
	if err := os.Mkdir(tmpDir, 0o755); err != nil {
		return 1, fmt.Errorf("failed to create test directory: %w", err)
	}
	r.logger.Debug("Temporary test directory at " + tmpDir)

	missed, err := p.suites.Unlisted(p.cfg.TestsDir())
	if err != nil {
		return 1, err
	}
	if len(missed) > 0 {
		r.warn("The following scripts are not being run: %v. Check the test lists.", missed)
		if r.opts.CI {
			return 1, nil
		}
	}
	if err := p.suites.CheckPrefixes(); err != nil {
		fmt.Fprintf(r.out, "%s %s\n", r.style.Bold("ERROR:"), err)
		return 1, err
	}

	if !r.opts.KeepCache {
		_ = os.RemoveAll(p.cfg.CacheDir())
	}

	return r.runTests(ctx, p, tmpDir)
}

func (r *Runner) runTests(ctx context.Context, p *plan, tmpDir string) (int, error) {
	if running, err := discover.NewScanner().Running(ctx); err == nil && running {
		r.warn("There is already a dashd process running on this system. Tests may fail unexpectedly due to resource contention!")
	}

	cacheDir := p.cfg.CacheDir()
	if info, err := os.Stat(cacheDir); err == nil && info.IsDir() {
		r.warn("There is a cache directory here: %s. If tests fail unexpectedly, try deleting the cache directory.", cacheDir)
	}

	testsDir := p.cfg.TestsDir()
	if err := r.runFrameworkTests(ctx, testsDir, p.suites.FrameworkModules); err != nil {
		return 1, err
	}

	flags := append([]string{"--cachedir=" + cacheDir}, p.passOn...)

	var cov *coverage.RPC
	if r.opts.Coverage {
		var err error
		if cov, err = coverage.New(""); err != nil {
			return 1, err
		}
		flags = append(flags, cov.Flag())
		r.logger.Debug("Initializing coverage directory at " + cov.Dir)
	}

	if len(p.testList) > 1 && r.opts.Jobs > 1 {
		if err := r.createCache(ctx, testsDir, flags, tmpDir); err != nil {
			return 1, err
		}
	}

	metrics := report.NewMetrics(r.runID)
	store := api.NewStore(r.runID, len(p.testList), r.now())

	stop := shutdown.New(5*time.Second, r.logger)
	defer stop.Shutdown()
	if r.opts.StatusAddr != "" {
		srv, err := api.Start(r.opts.StatusAddr, api.NewHandler(store, metrics.Registry()), r.tracer, r.logger)
		if err != nil {
			return 1, err
		}
		stop.Register("status server", shutdown.StopHTTPServer(srv))
	}

	ctx, span := r.tracer.Tracer().Start(ctx, "testrunner run", trace.WithAttributes(
		attribute.String("testrunner.run_id", r.runID),
		attribute.Int("testrunner.tests", len(p.testList)),
		attribute.Int("testrunner.jobs", r.opts.Jobs),
	))
	defer span.End()

	handler, err := scheduler.New(scheduler.Config{
		Jobs:           r.opts.Jobs,
		TestsDir:       testsDir,
		TmpDir:         tmpDir,
		TestList:       p.testList,
		Flags:          flags,
		UseTermControl: r.opts.Ansi,
		Attempts:       r.opts.Attempts,
		Interpreter:    r.opts.Interpreter,
		PollInterval:   r.opts.PollInterval,
		Out:            r.out,
		Logger:         r.logger,
		Metrics:        metrics,
		Tracer:         r.tracer.Tracer(),
	})
	if err != nil {
		return 1, err
	}

	timing := observe.NewTiming(r.now())
	maxLenName := report.MaxNameLen(p.testList)
	testCount := len(p.testList)
	allPassed := true
	var results []job.Result

	for !handler.Done() {
		if r.opts.FailFast && !allPassed {
			break
		}
		completions, err := handler.Next(ctx)
		if err != nil {
			if killErr := handler.KillAll(); killErr != nil {
				r.logger.Error("Failed to kill running tests", map[string]interface{}{"error": killErr.Error()})
			}
			return 1, err
		}

		for _, c := range completions {
			results = append(results, c.Result)
			store.AddResult(c.Result)

			doneStr := fmt.Sprintf("%d/%d - %s", len(results), testCount, r.style.Bold(c.Result.Name))
			switch c.Result.Status {
			case job.StatusPassed:
				r.logger.Debug(fmt.Sprintf("%s passed, Duration: %d s", doneStr, c.Result.Seconds()))
			case job.StatusSkipped:
				r.logger.Debug(fmt.Sprintf("%s skipped (%s)", doneStr, c.SkipReason))
			default:
				allPassed = false
				r.printFailure(ctx, doneStr, c, testsDir)
			}

			if !allPassed && r.opts.FailFast {
				r.logger.Debug("Early exiting after test failure")
				break
			}
		}
		store.SetQueue(handler.Snapshot(), handler.Pending())
	}

	timing.Complete(r.now())
	runtime := timing.Seconds()
	_, reportErr := report.PrintResults(r.out, results, maxLenName, runtime, r.style)

	coveragePassed := true
	if cov != nil {
		passed, err := cov.Report(r.out)
		if err != nil {
			reportErr = errors.Join(reportErr, err)
		}
		coveragePassed = passed
		r.logger.Debug("Cleaning up coverage data")
		if err := cov.Cleanup(); err != nil {
			r.logger.Warn("Failed to remove coverage data: " + err.Error())
		}
	}

	if entries, err := os.ReadDir(tmpDir); err == nil && len(entries) == 0 {
		_ = os.Remove(tmpDir)
	}

	metrics.SetRunDuration(float64(runtime))
	if r.opts.MetricsFile != "" {
		if err := report.WriteTextfile(r.opts.MetricsFile, metrics.Registry()); err != nil {
			r.logger.Warn("Failed to write metrics file: " + err.Error())
		}
	}

	// Dangling tests only remain after a fail-fast exit.
	if os.Getenv(LeaveDanglingEnv) == "" && handler.InFlight() > 0 {
		if err := handler.KillAll(); err != nil {
			r.logger.Error("Failed to kill running tests", map[string]interface{}{"error": err.Error()})
		}
	}

	span.SetAttributes(
		attribute.Int("testrunner.results", len(results)),
		attribute.Bool("testrunner.passed", allPassed && coveragePassed),
	)
	if reportErr != nil {
		return 1, reportErr
	}
	if allPassed && coveragePassed {
		return 0, nil
	}
	return 1, nil
}

func (r *Runner) printFailure(ctx context.Context, doneStr string, c scheduler.Completion, testsDir string) {
	fmt.Fprintf(r.out, "%s failed, Duration: %d s\n\n", doneStr, c.Result.Seconds())
	fmt.Fprintf(r.out, "%s%s\n\n", r.style.Bold("stdout:\n"), c.Stdout)
	fmt.Fprintf(r.out, "%s%s\n\n", r.style.Bold("stderr:\n"), c.Stderr)

	if r.opts.CombinedLogsLen <= 0 {
		return
	}
	if info, err := os.Stat(c.TestDir); err != nil || !info.IsDir() {
		return
	}

	fmt.Fprintln(r.out, r.style.Bold(fmt.Sprintf("Combine the logs and print the last %d lines ...", r.opts.CombinedLogsLen)))
	fmt.Fprint(r.out, "\n============\n")
	fmt.Fprintln(r.out, r.style.Bold(fmt.Sprintf("Combined log for %s:", c.TestDir)))
	fmt.Fprint(r.out, "============\n\n")

	combiner := combine.Combiner{Interpreter: r.opts.Interpreter, TestsDir: testsDir, Color: r.opts.Ansi}
	lines, err := combiner.Tail(ctx, c.TestDir, r.opts.CombinedLogsLen)
	if err != nil {
		r.logger.Warn(err.Error())
	}
	fmt.Fprintln(r.out, strings.Join(lines, "\n"))
}

// runFrameworkTests runs the unit tests of the test framework modules.
func (r *Runner) runFrameworkTests(ctx context.Context, testsDir string, modules []string) error {
	fmt.Fprintln(r.out, "Running Unit Tests for Test Framework Modules")
	if len(modules) == 0 {
		return nil
	}

	args := []string{"-m", "unittest", "-f"}
	for _, m := range modules {
		args = append(args, "test_framework."+m)
	}
	cmd := exec.CommandContext(ctx, r.opts.Interpreter, args...)
	cmd.Dir = testsDir
	cmd.Stdout = r.out
	cmd.Stderr = r.out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v", ErrFrameworkTests, err)
	}
	return nil
}

// createCache populates the cache directory shared by the tests.
func (r *Runner) createCache(ctx context.Context, testsDir string, flags []string, tmpDir string) error {
	args := append([]string{filepath.Join(testsDir, "create_cache.py")}, flags...)
	args = append(args, "--tmpdir="+filepath.Join(tmpDir, "cache"))

	output, err := exec.CommandContext(ctx, r.opts.Interpreter, args...).Output()
	if err != nil {
		r.out.Write(output)
		return fmt.Errorf("failed to create cache: %w", err)
	}
	return nil
}
