// Package runner launches helper scripts as child processes.
//
// A launched script gets two OS pipes for stdout and stderr which the Handle
// owns; stdin is passed straight through from the host so an elevation
// wrapper such as sudo can run its own credential prompt. The runner never
// reads, logs or buffers stdin.
package runner

import (
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"os/exec"
	"strings"
)

var ErrLaunchFailed = errors.New("launch failed")

// Spec describes one script invocation.
type Spec struct {
	Path    string
	Args    []string
	Elevate bool
	Dir     string
}

type Config struct {
	// Interpreter runs the script, "bash" when empty.
	Interpreter string
	// Elevator is the privilege wrapper prepended when Spec.Elevate is set,
	// "sudo" when empty.
	Elevator []string
	// Stdin is handed to the child untouched. Nil means /dev/null.
	Stdin io.Reader
	// Env is appended to the host environment.
	Env []string
}

type Runner struct {
	cfg Config
}

func New(cfg Config) *Runner {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "bash"
	}
	if len(cfg.Elevator) == 0 {
		cfg.Elevator = []string{"sudo"}
	}
	return &Runner{cfg: cfg}
}

// Command returns the argument vector Launch would execute for spec.
func (r *Runner) Command(spec Spec) []string {
	argv := make([]string, 0, len(r.cfg.Elevator)+2+len(spec.Args))
	if spec.Elevate {
		argv = append(argv, r.cfg.Elevator...)
	}
	argv = append(argv, r.cfg.Interpreter, spec.Path)
	return append(argv, spec.Args...)
}

// Launch marks the script executable and starts it. It returns as soon as the
// process is running; use Handle.Wait or a pump to follow it.
func (r *Runner) Launch(spec Spec) (*Handle, error) {
	if err := markExecutable(spec.Path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	argv := r.Command(spec)
	log.Info("Executing", "cmd", strings.Join(argv, " "))

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdin = r.cfg.Stdin
	if len(r.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), r.cfg.Env...)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrLaunchFailed, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrLaunchFailed, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	startErr := cmd.Start()

	// The child holds its own copies of the write ends now.
	outW.Close()
	errW.Close()

	if startErr != nil {
		outR.Close()
		errR.Close()
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, startErr)
	}

	h := newHandle(cmd, outR, errR)
	go h.waitLoop()

	log.Debug("Started", "pid", h.PID(), "script", spec.Path)
	return h, nil
}

func markExecutable(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	mode := st.Mode().Perm()
	if mode&0o111 == 0o111 {
		return nil
	}

	log.Debug("Marking executable", "path", path)
	if err := os.Chmod(path, mode|0o111); err != nil {
		return fmt.Errorf("chmod +x %s: %w", path, err)
	}
	return nil
}
