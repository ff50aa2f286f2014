//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs is a no-op on Windows.
func setDaemonAttrs(_ *exec.Cmd) {}

// shutdownSignals are the signals that trigger a graceful server shutdown.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// sigTERM asks the server to shut down; Windows delivers it as a kill.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

// sigKILL stops a server that ignored sigTERM.
func sigKILL() syscall.Signal { return syscall.SIGKILL }
