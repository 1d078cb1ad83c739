package service

import (
	"context"
	"errors"
	"log"
	"os/exec"
)

// CommandRestarter restarts the service by running an external command,
// normally "sudo systemctl restart mcssh.service". The command is started
// detached because it usually terminates this process.
type CommandRestarter struct {
	Argv []string
}

// Restart starts the restart command without waiting for it.
func (r *CommandRestarter) Restart(ctx context.Context) error {
	if len(r.Argv) == 0 {
		return errors.New("empty restart command")
	}
	cmd := exec.Command(r.Argv[0], r.Argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("[service] Restart command failed: %v", err)
		}
	}()
	return nil
}
