package desktop

import (
	"context"
	"fmt"
	"os/exec"

	"ghnotifyd/internal/notify"
	"ghnotifyd/pkg/logx"
)

// CommandOpener opens links by spawning an external command (xdg-open by
// default), detaching immediately so a slow browser start cannot stall the
// caller.
type CommandOpener struct {
	command string
	log     logx.Logger
}

var _ notify.Opener = (*CommandOpener)(nil)

func NewCommandOpener(command string, log logx.Logger) *CommandOpener {
	if command == "" {
		command = "xdg-open"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandOpener{command: command, log: log}
}

func (o *CommandOpener) Open(ctx context.Context, url string) error {
	cmd := exec.CommandContext(ctx, o.command, url)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", o.command, err)
	}
	// Reap in the background; a nonzero exit is log-worthy, nothing more.
	go func() {
		if err := cmd.Wait(); err != nil {
			o.log.Warn("open command failed", logx.String("command", o.command), logx.String("url", url), logx.Err(err))
		}
	}()
	return nil
}
