//go:build !windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// daemonCommand builds the background `serve` child. It runs in its own
// session so closing the launching terminal does not hang it up.
func daemonCommand(exe string, args []string, logFile *os.File) *exec.Cmd {
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return child
}

func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}
}

func sigTERM() syscall.Signal { return syscall.SIGTERM }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
