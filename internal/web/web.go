// Package web opens URLs in the user's browser.
package web

import (
	"fmt"
	log "log/slog"
	"os/exec"
)

// Opener launches Command with the URL as its only argument and does not
// wait for the browser to exit.
type Opener struct {
	Command string
}

func NewOpener(command string) *Opener {
	if command == "" {
		command = "xdg-open"
	}
	return &Opener{Command: command}
}

func (o *Opener) Open(url string) error {
	cmd := exec.Command(o.Command, url)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", o.Command, err)
	}
	log.Debug("Opened browser", "url", url, "pid", cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug("Browser opener exited", "err", err)
		}
	}()
	return nil
}
