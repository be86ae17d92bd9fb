// Package scheduler runs test scripts as a bounded pool of child processes,
// retries failed attempts and hands back categorized results.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dashpay/functest-runner/internal/capture"
	"github.com/dashpay/functest-runner/internal/job"
	"github.com/dashpay/functest-runner/internal/logging"
	"github.com/dashpay/functest-runner/internal/ports"
	"github.com/dashpay/functest-runner/internal/report"
	"github.com/dashpay/functest-runner/internal/wrapper"
)

// Exit codes understood by the handler.
const (
	ExitPassed  = 0
	ExitSkipped = 77
)

const (
	DefaultInterpreter  = "python3"
	DefaultPollInterval = 500 * time.Millisecond
)

// killWait bounds how long KillAll waits for killed children to be reaped.
const killWait = 5 * time.Second

// ErrNoJobs is returned by Next when nothing is pending or running.
var ErrNoJobs = errors.New("scheduler: no jobs pending or running")

var skipPattern = regexp.MustCompile(`Test Skipped: (.*)`)

// Config holds the handler parameters.
type Config struct {
	Jobs     int      // maximum number of concurrently running tests
	TestsDir string   // directory holding the test scripts
	TmpDir   string   // parent of the per-test working directories
	TestList []string // job specifications, e.g. "wallet_hd.py --descriptors"
	Flags    []string // appended to every invocation

	// UseTermControl prints a progress dot per idle poll and clears the
	// line again before the next message.
	UseTermControl bool

	Attempts int // launches per test before it counts as failed

	Interpreter  string        // defaults to DefaultInterpreter
	PollInterval time.Duration // defaults to DefaultPollInterval
	SpoolDir     string        // where captured output spills, default temp dir

	Out     io.Writer       // progress output, defaults to os.Stdout
	Logger  *logging.Logger // optional
	Metrics *report.Metrics // optional
	Tracer  trace.Tracer    // optional, one span per attempt
}

// Completion is one finished test as returned by Next.
type Completion struct {
	Result     job.Result
	TestDir    string
	Stdout     string
	Stderr     string
	SkipReason string
}

// running is an in-flight slot with its process and captured output.
type running struct {
	slot   *job.Slot
	proc   *wrapper.Process
	stdout *capture.SpoolBuffer
	stderr *capture.SpoolBuffer
	span   trace.Span
}

// Handler triggers the test scripts of the list. It is driven by a single
// goroutine; none of its methods may be called concurrently.
type Handler struct {
	cfg     Config
	pending []string
	jobs    []*running

	// notify receives a token whenever a child exits so the poll loop can
	// wake before the next tick.
	notify chan struct{}

	dotCount int
	now      func() time.Time
}

// New validates cfg and creates a handler owning a copy of the test list.
func New(cfg Config) (*Handler, error) {
	if cfg.Jobs < 1 {
		return nil, fmt.Errorf("number of parallel jobs must be at least 1, got %d", cfg.Jobs)
	}
	if cfg.Attempts < 1 {
		return nil, fmt.Errorf("number of attempts must be at least 1, got %d", cfg.Attempts)
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = DefaultInterpreter
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}

	return &Handler{
		cfg:     cfg,
		pending: append([]string(nil), cfg.TestList...),
		notify:  make(chan struct{}, 1),
		now:     time.Now,
	}, nil
}

// Done reports whether every test has produced its result.
func (h *Handler) Done() bool {
	return len(h.jobs) == 0 && len(h.pending) == 0
}

// InFlight returns the number of running tests.
func (h *Handler) InFlight() int {
	return len(h.jobs)
}

// Pending returns the number of tests not started yet.
func (h *Handler) Pending() int {
	return len(h.pending)
}

// Next fills the free slots, then blocks until at least one test finished
// and returns every test that did. Retried attempts are relaunched in place
// and never returned. If a relaunch fails, the tests finished so far are
// returned together with the error and the failed job stays in flight.
func (h *Handler) Next(ctx context.Context) ([]Completion, error) {
	for len(h.jobs) < h.cfg.Jobs && len(h.pending) > 0 {
		spec := h.pending[0]
		h.pending = h.pending[1:]
		portSeed := len(h.pending)

		slot, err := job.NewSlot(spec, portSeed, h.cfg.TmpDir)
		if err != nil {
			return nil, err
		}
		r, err := h.launch(ctx, slot)
		if err != nil {
			return nil, err
		}
		h.jobs = append(h.jobs, r)
	}
	h.cfg.Metrics.SetQueue(len(h.jobs), len(h.pending))

	if len(h.jobs) == 0 {
		return nil, ErrNoJobs
	}

	if len(h.pending) == 0 {
		fmt.Fprintf(h.cfg.Out, "Remaining jobs: [%s]\n", strings.Join(h.runningNames(), ", "))
	}

	h.dotCount = 0
	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		idle := true
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		case <-h.notify:
			idle = false
		}

		done, err := h.collect(ctx)
		if err != nil || len(done) > 0 {
			return done, err
		}
		if idle {
			if h.cfg.UseTermControl {
				fmt.Fprint(h.cfg.Out, ".")
			}
			h.dotCount++
		}
	}
}

// KillAll sends SIGKILL to the process group of every running test and
// waits for the children to be reaped.
func (h *Handler) KillAll() error {
	var errs []error
	for _, r := range h.jobs {
		if err := r.proc.KillGroup(); err != nil {
			errs = append(errs, err)
		}
	}

	timeout := time.NewTimer(killWait)
	defer timeout.Stop()
	for _, r := range h.jobs {
		select {
		case <-r.proc.Done():
		case <-timeout.C:
			return errors.Join(append(errs, fmt.Errorf("%s did not exit after SIGKILL", r.slot.Name))...)
		}
	}
	return errors.Join(errs...)
}

// Snapshot describes the running tests.
func (h *Handler) Snapshot() []JobInfo {
	infos := make([]JobInfo, 0, len(h.jobs))
	for _, r := range h.jobs {
		infos = append(infos, JobInfo{
			Name:      r.slot.Name,
			PortSeed:  r.slot.PortSeed,
			TestDir:   r.slot.TestDir,
			Attempt:   r.slot.Attempt,
			PID:       r.proc.PID(),
			StartTime: r.slot.StartTime,
		})
	}
	return infos
}

// JobInfo is a read-only view of a running test.
type JobInfo struct {
	Name      string    `json:"name"`
	PortSeed  int       `json:"port_seed"`
	TestDir   string    `json:"test_dir"`
	Attempt   int       `json:"attempt"`
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
}

func (h *Handler) runningNames() []string {
	names := make([]string, 0, len(h.jobs))
	for _, r := range h.jobs {
		names = append(names, r.slot.Name)
	}
	return names
}

// launch starts the next attempt of slot.
func (h *Handler) launch(ctx context.Context, slot *job.Slot) (*running, error) {
	if err := slot.Start(h.now()); err != nil {
		return nil, err
	}

	stdout := capture.NewSpoolBuffer(capture.DefaultMaxMemory, h.cfg.SpoolDir)
	stderr := capture.NewSpoolBuffer(capture.DefaultMaxMemory, h.cfg.SpoolDir)

	proc, err := wrapper.Start(wrapper.Invocation{
		Interpreter: h.cfg.Interpreter,
		TestsDir:    h.cfg.TestsDir,
		Script:      slot.Script,
		Args:        slot.Args,
		Flags:       h.cfg.Flags,
		PortSeed:    slot.PortSeed,
		TestDir:     slot.TestDir,
	}, stdout, stderr, h.notify)
	if err != nil {
		stdout.Close()
		stderr.Close()
		return nil, err
	}

	_, span := h.cfg.Tracer.Start(ctx, slot.Name, trace.WithAttributes(
		attribute.String("test.script", slot.Script),
		attribute.Int("test.portseed", slot.PortSeed),
		attribute.Int("test.attempt", slot.Attempt),
		attribute.Int("test.pid", proc.PID()),
	))

	fields := map[string]interface{}{
		"pid":      proc.PID(),
		"portseed": slot.PortSeed,
		"attempt":  slot.Attempt,
		"argv":     strings.Join(proc.Argv(), " "),
	}
	if p2p, err := ports.P2P(0, slot.PortSeed); err == nil {
		fields["p2p_port"] = p2p
	}
	if rpc, err := ports.RPC(0, slot.PortSeed); err == nil {
		fields["rpc_port"] = rpc
	}
	h.cfg.Logger.Debug("Started "+slot.Name, fields)
	h.cfg.Metrics.IncrLaunched()

	return &running{slot: slot, proc: proc, stdout: stdout, stderr: stderr, span: span}, nil
}

// collect classifies every exited test. Failed attempts with attempts left
// are relaunched with the same port seed and working directory.
func (h *Handler) collect(ctx context.Context) ([]Completion, error) {
	var (
		done       []Completion
		kept       []*running
		relaunched []*running
	)

	for i, r := range h.jobs {
		if !r.proc.Exited() {
			kept = append(kept, r)
			continue
		}

		stdout, stderr := r.stdout.String(), r.stderr.String()
		r.stdout.Close()
		r.stderr.Close()

		exitCode := r.proc.ExitCode()
		now := h.now()
		slot := r.slot

		fields := map[string]interface{}{
			"exit_code":   exitCode,
			"duration_ms": r.proc.Duration().Milliseconds(),
		}
		if err := r.proc.Err(); err != nil {
			fields["error"] = err.Error()
		}
		h.cfg.Logger.Debug("Exited "+slot.Name, fields)

		var (
			state      job.State
			skipReason string
		)
		switch {
		case exitCode == ExitPassed && stderr == "":
			state = job.StatePassed
		case exitCode == ExitSkipped:
			state = job.StateSkipped
			if m := skipPattern.FindStringSubmatch(stdout); m != nil {
				skipReason = m[1]
			}
		case slot.Attempt < h.cfg.Attempts:
			h.clearLine()
			if err := slot.Transition(job.StateRetrying); err != nil {
				return nil, err
			}
			_ = os.RemoveAll(slot.TestDir)
			fmt.Fprintf(h.cfg.Out, "%s failed at attempt %d/%d, Duration: %d s\n",
				slot.Name, slot.Attempt, h.cfg.Attempts, int64(now.Sub(slot.StartTime)/time.Second))
			h.cfg.Metrics.IncrRetried()
			endSpan(r.span, "Retrying", exitCode)

			next, err := h.launch(ctx, slot)
			if err != nil {
				// The job stays in flight so the run is never short a result.
				h.jobs = append(append(append(kept, r), h.jobs[i+1:]...), relaunched...)
				h.cfg.Metrics.SetQueue(len(h.jobs), len(h.pending))
				return done, fmt.Errorf("failed to relaunch %s: %w", slot.Name, err)
			}
			relaunched = append(relaunched, next)
			continue
		default:
			state = job.StateFailed
		}

		res, err := slot.Finish(state, exitCode, now)
		if err != nil {
			return nil, err
		}
		res.SkipReason = skipReason
		endSpan(r.span, string(res.Status), exitCode)

		h.clearLine()
		h.cfg.Metrics.RecordResult(res)
		done = append(done, Completion{
			Result:     res,
			TestDir:    slot.TestDir,
			Stdout:     stdout,
			Stderr:     stderr,
			SkipReason: skipReason,
		})
	}

	h.jobs = append(kept, relaunched...)
	h.cfg.Metrics.SetQueue(len(h.jobs), len(h.pending))
	return done, nil
}

func endSpan(span trace.Span, status string, exitCode int) {
	span.SetAttributes(
		attribute.String("test.status", status),
		attribute.Int("test.exit_code", exitCode),
	)
	if status == string(job.StatusFailed) {
		span.SetStatus(codes.Error, "test failed")
	}
	span.End()
}

func (h *Handler) clearLine() {
	if h.cfg.UseTermControl && h.dotCount > 0 {
		fmt.Fprint(h.cfg.Out, "\r"+strings.Repeat(" ", h.dotCount)+"\r")
	}
	h.dotCount = 0
}
