//go:build unix

package host

import (
	"os/exec"
	"syscall"
)

// killProcessGroup places the child in its own process group and kills the
// whole group on cancellation, so helper processes spawned by the host CLI
// do not outlive it.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
