//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup places the subprocess in its own process group so a
// kill reaches the shell and everything it spawned, leaving no orphans.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		// Fall back to the single process if the group is already gone.
		cmd.Process.Kill() //nolint:errcheck
	}
}
