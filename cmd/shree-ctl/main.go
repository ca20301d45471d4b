package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	cli "github.com/spf13/pflag"

	"shree/internal/ipc"
)

const usage = `usage: shree-ctl [--socket path] <command> [text]

commands:
  run <text>      run a command and follow its output
  trigger         listen on the daemon's microphone, then run what was heard
  answer yes|no   answer the pending confirmation
  status          show whether a task is running
  history         show recent commands
`

func main() {
	socket := cli.String("socket", ipc.DefaultSocketPath(), "Control socket path")
	cli.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}
	req := ipc.Request{Cmd: args[0], Text: strings.Join(args[1:], " ")}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failed := false
	stdin := bufio.NewReader(os.Stdin)
	err := ipc.Do(ctx, *socket, req, func(r ipc.Reply) {
		switch r.Kind {
		case ipc.ReplyOutput:
			fmt.Println(r.Text)
		case ipc.ReplyNotice:
			fmt.Println("Shree:", r.Text)
		case ipc.ReplyConfirm:
			fmt.Printf("Shree: %s (yes/no) ", r.Text)
			answer(ctx, *socket, stdin)
		case ipc.ReplyResult:
			failed = !r.Success
		case ipc.ReplyStatus:
			fmt.Println("state:", r.State)
			if r.Pending != "" {
				fmt.Println("waiting for:", r.Pending)
			}
		case ipc.ReplyHistory:
			for _, l := range r.Lines {
				fmt.Println(l)
			}
		case ipc.ReplyOK:
		case ipc.ReplyError:
			fmt.Fprintln(os.Stderr, "error:", r.Text)
			failed = true
		}
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "shree-daemon not running:", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}

// answer reads the reply to a confirmation and sends it on a second
// connection, the first one is busy streaming the task.
func answer(ctx context.Context, socket string, in *bufio.Reader) {
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return
	}
	_ = ipc.Do(ctx, socket, ipc.Request{Cmd: ipc.CmdAnswer, Text: strings.TrimSpace(line)}, func(r ipc.Reply) {
		if r.Kind == ipc.ReplyError {
			fmt.Fprintln(os.Stderr, "error:", r.Text)
		}
	})
}
