package ppp

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// KillDelay is how long a process gets to exit after SIGTERM
var KillDelay = 5 * time.Second

// Process is a running external program
type Process interface {
	Pid() int
	// Stop asks the process to exit and kills it if it does not. The exit
	// callback still fires.
	Stop()
}

// Runner starts external programs. exit is called once from any
// goroutine with the exit code after the process has been reaped.
type Runner interface {
	Start(program string, args, env []string, exit func(code int)) (Process, error)
}

// ExecRunner runs programs with os/exec
type ExecRunner struct {
	log *log.Logger
}

// NewExecRunner returns a runner for real processes
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		log: log.New(os.Stderr, "ppp: ", log.LstdFlags|log.Lmsgprefix),
	}
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// Start launches program and reaps it in the background
func (r *ExecRunner) Start(program string, args, env []string, exit func(int)) (Process, error) {
	cmd := exec.Command(program, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting %v: %w", program, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		close(p.done)
		code := 0
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else if err != nil {
			r.log.Printf("%v wait: %v", program, err)
			code = -1
		}
		exit(code)
	}()

	return p, nil
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Stop() {
	select {
	case <-p.done:
		return
	default:
	}

	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	go func() {
		select {
		case <-p.done:
		case <-time.After(KillDelay):
			_ = p.cmd.Process.Kill()
		}
	}()
}
