// Package wrapper launches test scripts as child processes.
package wrapper

import (
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dashpay/functest-runner/internal/observe"
)

// outputDrainDelay bounds how long output copying may continue after the
// child exited, e.g. when a spawned daemon still holds the pipes.
const outputDrainDelay = 5 * time.Second

// Invocation describes one test script launch.
type Invocation struct {
	Interpreter string   // e.g. "python3"; empty runs the script directly
	TestsDir    string   // directory holding the scripts
	Script      string   // script file name, relative to TestsDir
	Args        []string // script arguments from the job specification
	Flags       []string // flags shared by every job
	PortSeed    int
	TestDir     string // passed as --tmpdir
}

// ScriptPath returns the resolved script path.
func (inv Invocation) ScriptPath() string {
	return filepath.Join(inv.TestsDir, inv.Script)
}

// Argv returns the full command line:
// <interpreter> <script> <args...> <flags...> --portseed=<n> --tmpdir=<dir>
func (inv Invocation) Argv() []string {
	var argv []string
	if inv.Interpreter != "" {
		argv = append(argv, inv.Interpreter)
	}
	argv = append(argv, inv.ScriptPath())
	argv = append(argv, inv.Args...)
	argv = append(argv, inv.Flags...)
	argv = append(argv,
		fmt.Sprintf("--portseed=%d", inv.PortSeed),
		fmt.Sprintf("--tmpdir=%s", inv.TestDir),
	)
	return argv
}

// Process is a launched test script.
type Process struct {
	*observe.Watcher

	cmd  *exec.Cmd
	pid  int
	argv []string
}

// Start launches inv with stdout and stderr sent to the given writers. The
// child leads its own process group so that KillGroup also reaches the node
// processes it spawns. notify receives a token when the child exits.
func Start(inv Invocation, stdout, stderr io.Writer, notify chan<- struct{}) (*Process, error) {
	argv := inv.Argv()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = outputDrainDelay
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // New process group
		Pgid:    0,    // Process becomes its own group leader
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", inv.Script, err)
	}

	return &Process{
		Watcher: observe.Watch(cmd, notify),
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		argv:    argv,
	}, nil
}

// PID returns the child's process id.
func (p *Process) PID() int {
	return p.pid
}

// Argv returns the command line the child was started with.
func (p *Process) Argv() []string {
	return p.argv
}

// KillGroup sends SIGKILL to the child's whole process group. Already
// exited processes are left alone.
func (p *Process) KillGroup() error {
	if p.Exited() {
		return nil
	}
	if err := syscall.Kill(-p.pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("failed to kill process group %d: %w", p.pid, err)
	}
	return nil
}
