// accentctl is the control CLI for accentd: query status and flip
// runtime settings over the control-plane socket without restarting
// the daemon.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/gildo/accentd/internal/ipc"
)

// stdout/stderr are indirected so tests can redirect them; production
// code always uses os.Stdout/os.Stderr.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

const (
	defaultRootSocket = "/run/accentd.sock"
	defaultUserSocket = "/tmp/accentd.sock"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	sockPath := socketPath()

	switch args[0] {
	case "status":
		return cmdStatus(sockPath)

	case "set-locale":
		if len(args) != 2 {
			fmt.Fprintln(stderr, "usage: accentctl set-locale <name>")
			return exitUsage
		}
		return cmdSetLocale(sockPath, args[1])

	case "enable":
		return cmdSetEnabled(sockPath, ipc.TypeEnable)

	case "disable":
		return cmdSetEnabled(sockPath, ipc.TypeDisable)

	case "toggle":
		return cmdSetEnabled(sockPath, ipc.TypeToggle)

	case "help", "-h", "--help":
		usage()
		return exitOK

	default:
		fmt.Fprintf(stderr, "accentctl: unknown command %q\n\n", args[0])
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprintln(stderr, `accentctl - control accentd without restarting it

USAGE:
    accentctl status
    accentctl set-locale <name>
    accentctl enable
    accentctl disable
    accentctl toggle

ENVIRONMENT:
    ACCENTD_SOCK   override the control socket path`)
}

// socketPath resolves the control socket, honoring ACCENTD_SOCK, then
// falling back to the root or per-user default depending on who is
// running accentctl.
func socketPath() string {
	if p := os.Getenv("ACCENTD_SOCK"); p != "" {
		return p
	}
	if os.Geteuid() == 0 {
		return defaultRootSocket
	}
	return defaultUserSocket
}
