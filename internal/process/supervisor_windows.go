//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// setProcessGroup configures cmd to start in its own process group (CREATE_NEW_PROCESS_GROUP)
// so that CTRL_BREAK_EVENT can be delivered to the whole tree instead of one process.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// signalGroupStop is not supported on Windows: there is no SIGSTOP equivalent that
// suspends an entire process tree without a debugger attached, so PAUSE surfaces as an
// unsupported control action on this platform.
func signalGroupStop(pgid int) error {
	return fmt.Errorf("pause is not supported on windows")
}

// signalGroupContinue mirrors signalGroupStop's limitation.
func signalGroupContinue(pgid int) error {
	return fmt.Errorf("resume is not supported on windows")
}

// terminateProcessGroup delivers CTRL_BREAK_EVENT for a graceful stop, falling back to
// TerminateProcess if the group hasn't exited within graceful.
func terminateProcessGroup(pgid int, graceful time.Duration, log *zap.Logger) error {
	proc, err := syscall.OpenProcess(syscall.PROCESS_TERMINATE, false, uint32(pgid))
	if err != nil {
		return nil // already gone
	}
	defer syscall.CloseHandle(proc)

	_ = syscall.GenerateConsoleCtrlEvent(syscall.CTRL_BREAK_EVENT, uint32(pgid))

	deadline := time.Now().Add(graceful)
	for time.Now().Before(deadline) {
		var code uint32
		if err := syscall.GetExitCodeProcess(proc, &code); err == nil && code != 259 /* STILL_ACTIVE */ {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	log.Warn("process did not exit after CTRL_BREAK_EVENT, forcing termination", zap.Int("pid", pgid))
	if err := syscall.TerminateProcess(proc, 1); err != nil {
		return fmt.Errorf("TerminateProcess %d: %w", pgid, err)
	}
	return nil
}

func signalFromExitError(exitErr *exec.ExitError) (int, bool) {
	return 0, false
}
