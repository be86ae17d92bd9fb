package observe

import (
	"errors"
	"os/exec"
	"sync"
	"time"
)

// Watcher observes the lifecycle of one started child process. Exactly one
// goroutine blocks in Wait; everything else only looks at the result through
// non-blocking accessors.
type Watcher struct {
	cmd       *exec.Cmd
	startTime time.Time
	done      chan struct{}

	mu       sync.Mutex
	exitCode int
	waitErr  error
	exitTime time.Time
}

// Watch starts observing cmd, which must already be started. When the
// process exits, a token is sent to notify without blocking (notify may be
// nil).
func Watch(cmd *exec.Cmd, notify chan<- struct{}) *Watcher {
	w := &Watcher{
		cmd:       cmd,
		startTime: time.Now(),
		done:      make(chan struct{}),
		exitCode:  -1,
	}
	go w.wait(notify)
	return w
}

func (w *Watcher) wait(notify chan<- struct{}) {
	err := w.cmd.Wait()
	exitTime := time.Now()

	// A non-zero exit is reported through the exit code.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}

	// ProcessState is set even when Wait gave up on draining output
	// (exec.ErrWaitDelay); -1 when terminated by a signal.
	code := -1
	if w.cmd.ProcessState != nil {
		code = w.cmd.ProcessState.ExitCode()
	}

	w.mu.Lock()
	w.exitCode = code
	w.waitErr = err
	w.exitTime = exitTime
	w.mu.Unlock()

	close(w.done)

	if notify != nil {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
}

// Exited reports, without blocking, whether the process has exited and all
// of its output has been copied.
func (w *Watcher) Exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the process exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// ExitCode returns the exit code, or -1 while running or when the process
// was killed by a signal.
func (w *Watcher) ExitCode() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exitCode
}

// Err returns the error reported by Wait other than a non-zero exit, e.g.
// exec.ErrWaitDelay when output copying was cut short.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waitErr
}

// Duration returns how long the process ran, or has been running so far.
func (w *Watcher) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.exitTime.IsZero() {
		return time.Since(w.startTime)
	}
	return w.exitTime.Sub(w.startTime)
}
