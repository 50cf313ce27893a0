//go:build !windows

package process

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// setProcessGroup configures cmd to start in its own process group so that the
// Supervisor can signal the whole tree of children the command spawns, not just the
// immediate child, by signaling -pgid.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroupStop sends SIGSTOP to the process group, freezing every process in it
// without terminating any of them.
func signalGroupStop(pgid int) error {
	return syscall.Kill(-pgid, syscall.SIGSTOP)
}

// signalGroupContinue sends SIGCONT to resume a previously stopped process group.
func signalGroupContinue(pgid int) error {
	return syscall.Kill(-pgid, syscall.SIGCONT)
}

// processGroupAlive reports whether any process in pgid still exists, using the
// standard kill(pid, 0) existence probe.
func processGroupAlive(pgid int) bool {
	err := syscall.Kill(-pgid, 0)
	return err == nil
}

// terminateProcessGroup implements the five-step termination protocol: SIGTERM the
// group, wait up to graceful for it to exit, SIGKILL the group if it hasn't, wait
// again briefly, and log if anything in the group is still alive after that.
func terminateProcessGroup(pgid int, graceful time.Duration, log *zap.Logger) error {
	if !processGroupAlive(pgid) {
		return nil
	}

	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("SIGTERM process group %d: %w", pgid, err)
	}

	if waitUntilGone(pgid, graceful) {
		return nil
	}

	log.Warn("process group did not exit after SIGTERM, escalating to SIGKILL",
		zap.Int("pgid", pgid), zap.Duration("waited", graceful))

	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("SIGKILL process group %d: %w", pgid, err)
	}

	if waitUntilGone(pgid, 2*time.Second) {
		return nil
	}

	log.Error("process group still alive after SIGKILL", zap.Int("pgid", pgid))
	return fmt.Errorf("process group %d survived SIGKILL", pgid)
}

func waitUntilGone(pgid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processGroupAlive(pgid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !processGroupAlive(pgid)
}

func signalFromExitError(exitErr *exec.ExitError) (int, bool) {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return 0, false
	}
	return int(status.Signal()), true
}
