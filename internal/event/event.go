// Package event holds the values a running task hands to whatever host is
// rendering it: output lines, notices, confirmation prompts and the final
// result.
package event

import "fmt"

// Origin identifies which stream of the child process a line came from.
type Origin int

const (
	Stdout Origin = iota
	Stderr
)

func (o Origin) String() string {
	switch o {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// Output is one line written by the child process, without its newline.
type Output struct {
	Task   string
	Origin Origin
	Text   string
}

// NoExitCode marks a Result that never got a process exit status
// (configuration errors, launch failures, faults, abnormal termination).
const NoExitCode = -1

// Result is the terminal outcome of one task. It is produced exactly once and
// is always the last thing observers hear about that task.
type Result struct {
	Task     string
	Success  bool
	ExitCode int
	Err      error
	Message  string
}

// Exited builds the Result for a process that exited on its own.
func Exited(code int) Result {
	return Result{Success: code == 0, ExitCode: code}
}

// Failed builds the Result for a task that never produced an exit status.
func Failed(err error, msg string) Result {
	return Result{ExitCode: NoExitCode, Err: err, Message: msg}
}

// Done builds a successful Result for tasks that do not run a process.
func Done(msg string) Result {
	return Result{Success: true, ExitCode: NoExitCode, Message: msg}
}

func (r Result) HasExitCode() bool {
	return r.ExitCode != NoExitCode
}

func (r Result) String() string {
	status := "ok"
	if !r.Success {
		status = "failed"
	}
	if r.HasExitCode() {
		return fmt.Sprintf("%s (exit %d)", status, r.ExitCode)
	}
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", status, r.Err)
	}
	return status
}
