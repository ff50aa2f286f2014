//go:build !windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs detaches the background server into its own session.
func setDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// shutdownSignals are the signals that trigger a graceful server shutdown.
func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// sigTERM asks the server to shut down gracefully.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

// sigKILL stops a server that ignored sigTERM.
func sigKILL() syscall.Signal { return syscall.SIGKILL }
