//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// isolateProcessGroup starts the child as the leader of a new process group
// so cancellation reaches everything it forks.
func isolateProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd)
	}
}

// killProcessGroup kills descendants left behind by a child that already exited.
func killProcessGroup(cmd *exec.Cmd) {
	_ = signalGroup(cmd)
}

func signalGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
