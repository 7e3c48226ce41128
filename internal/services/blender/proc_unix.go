//go:build unix

package blender

import (
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

// configureProcess puts Blender in its own process group so a timeout kill
// also reaps render workers it forked.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if err == unix.ESRCH {
			return nil
		}
		return err
	}
	cmd.WaitDelay = 10 * time.Second
}
