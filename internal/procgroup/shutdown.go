// SPDX-License-Identifier: MIT

// Package procgroup starts helper processes in their own group and
// tears the group down again.
package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/turnstile/internal/metrics"
)

// Terminate sends SIGTERM to the group, waits up to grace for waitCh and
// escalates to SIGKILL. It consumes and returns the error from waitCh.
// It is safe to call on nil commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := Kill(cmd, syscall.SIGTERM); err != nil {
		metrics.IncChildSignal("SIGTERM", "error")
	} else {
		metrics.IncChildSignal("SIGTERM", "sent")
	}

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	if err := Kill(cmd, syscall.SIGKILL); err != nil {
		metrics.IncChildSignal("SIGKILL", "error")
	} else {
		metrics.IncChildSignal("SIGKILL", "sent")
	}
	return <-waitCh
}
