//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// detachedProcess is DETACHED_PROCESS from the Win32 process creation flags.
const detachedProcess = 0x00000008

// daemonCommand builds the background `serve` child without a console so it
// outlives the launching shell.
func daemonCommand(exe string, args []string, logFile *os.File) *exec.Cmd {
	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
		HideWindow:    true,
	}
	return child
}

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// Windows has no graceful signal for another process; both values end up as
// TerminateProcess in daemon.PIDFile.Signal.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
