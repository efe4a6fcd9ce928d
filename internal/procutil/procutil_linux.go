//go:build linux

package procutil

import "syscall"

// ConfigureCleanup sets attrs so the eventual child is killed if clauderond
// dies first (Pdeathsig) and lives in its own process group, so Kill can
// take down anything it forked (Setpgid).
func ConfigureCleanup(attrs *syscall.SysProcAttr) *syscall.SysProcAttr {
	if attrs == nil {
		attrs = &syscall.SysProcAttr{}
	}
	attrs.Setpgid = true
	attrs.Pdeathsig = syscall.SIGKILL
	return attrs
}

// Kill signals the process group rooted at pid, taking down any children
// the attach process itself spawned, not just pid.
func Kill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
