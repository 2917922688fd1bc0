// Package tool wraps invocation of the external binaries the station depends
// on (rtl_fm, sox, noaa-apt, scp) behind a small interface so components can
// be tested without the real tools installed.
package tool

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Spec names an external command and its arguments.
type Spec struct {
	Name string
	Args []string
}

// String renders the spec as a shell-style command line for logging.
func (s Spec) String() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	return s.Name + " " + strings.Join(s.Args, " ")
}

// Runner executes external tools. Run blocks until the command exits and
// returns an error for a non-zero exit status. Start launches a supervised
// process for the caller to stop explicitly.
type Runner interface {
	Run(ctx context.Context, spec Spec) error
	Start(spec Spec) (Proc, error)
}

// Proc is a started external process under caller supervision.
type Proc interface {
	// Done yields the process's exit error (nil for clean exit) exactly once.
	Done() <-chan error
	// Terminate asks the process to exit gracefully.
	Terminate() error
	// Kill forcibly ends the process.
	Kill() error
}

// Exec is the production Runner backed by os/exec.
type Exec struct{}

func (Exec) Run(ctx context.Context, spec Spec) error {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", spec.Name, err, msg)
		}
		return fmt.Errorf("%s: %w", spec.Name, err)
	}
	return nil
}

func (Exec) Start(spec Spec) (Proc, error) {
	cmd := exec.Command(spec.Name, spec.Args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}

	p := &execProc{cmd: cmd, done: make(chan error, 1)}
	go func() { p.done <- cmd.Wait() }()
	return p, nil
}

type execProc struct {
	cmd  *exec.Cmd
	done chan error
}

func (p *execProc) Done() <-chan error { return p.done }

func (p *execProc) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *execProc) Kill() error {
	return p.cmd.Process.Kill()
}

// Stop terminates a process gracefully and kills it if it has not exited
// within grace. It always waits for the exit to be observed so the child is
// fully reaped before the caller inspects its output files.
func Stop(p Proc, grace time.Duration) {
	select {
	case <-p.Done():
		return
	default:
	}

	_ = p.Terminate()
	select {
	case <-p.Done():
	case <-time.After(grace):
		_ = p.Kill()
		<-p.Done()
	}
}
