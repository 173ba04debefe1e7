//go:build windows

package launch

import "os"

// terminateProcess terminates a process by PID. Windows has no SIGTERM;
// os.Process.Kill calls TerminateProcess, so graceful and forced stops
// collapse into the same call.
func terminateProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

// killProcess forcefully terminates a process by PID.
func killProcess(pid int) error {
	return terminateProcess(pid)
}

// processAlive reports whether pid maps to an openable process.
// os.FindProcess opens a real handle on Windows and fails for dead pids.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}
