//go:build !windows

package launch

import "syscall"

// terminateProcess asks a process to exit using SIGTERM.
// This is the Unix implementation.
func terminateProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// killProcess forcefully terminates a process by PID using SIGKILL.
func killProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

// processAlive probes a PID with signal 0. EPERM means the process
// exists but belongs to someone else, which still counts as alive.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
