// Package proc answers questions about local processes
package proc

import (
	"os"
	"os/exec"
	"strconv"
)

// Running reports whether a process with the given PID exists on this host.
// Works on Unix-like systems (Linux, macOS).
func Running(pid int) bool {
	if pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}
	return exec.Command("ps", "-p", strconv.Itoa(pid)).Run() == nil
}
