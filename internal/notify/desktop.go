package notify

import (
	"context"
	"os/exec"
	"time"
)

// Desktop posts a notification through notify-send. It is best effort: the
// daemon often runs without a notification server.
func Desktop(summary, body string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return exec.CommandContext(ctx, "notify-send", "-a", "shree", summary, body).Run()
}
