package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"shree/internal/event"
)

// Handle is one in-flight child process. The goroutine that launched it owns
// it; Close must only run after both output streams have been drained.
type Handle struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File

	done   chan struct{}
	result event.Result

	closeOnce sync.Once
	closeErr  error
}

func newHandle(cmd *exec.Cmd, stdout, stderr *os.File) *Handle {
	return &Handle{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}
}

func (h *Handle) Stdout() io.Reader { return h.stdout }
func (h *Handle) Stderr() io.Reader { return h.stderr }

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// Wait blocks until the process exits and reports how it ended. It may be
// called any number of times.
func (h *Handle) Wait() event.Result {
	<-h.done
	return h.result
}

// Close releases the read ends of the output pipes. Any reader still blocked
// on them returns an error.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = errors.Join(h.stdout.Close(), h.stderr.Close())
	})
	return h.closeErr
}

func (h *Handle) waitLoop() {
	err := h.cmd.Wait()

	res := event.Exited(0)
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
			res = event.Exited(exitErr.ExitCode())
		case errors.As(err, &exitErr):
			// killed by a signal
			res = event.Failed(fmt.Errorf("abnormal termination: %s", exitErr.ProcessState), "")
		default:
			res = event.Failed(err, "")
		}
	}

	h.result = res
	close(h.done)
}
