package main

import (
	"fmt"
	"strings"

	"github.com/gildo/accentd/internal/ipc"
)

// exit codes, per the control CLI's documented contract.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitUnreachable = 3
)

func cmdStatus(sockPath string) int {
	client, err := dial(sockPath)
	if err != nil {
		return exitUnreachable
	}
	defer client.Close()

	reply, err := client.Call(ipc.Message{Type: ipc.TypeGetStatus})
	if err != nil {
		fmt.Fprintf(stderr, "accentctl: status request failed: %v\n", err)
		return exitUnreachable
	}
	if reply.Type == ipc.TypeError {
		fmt.Fprintf(stderr, "accentctl: %s: %s\n", reply.Kind, reply.Message)
		return exitFailure
	}

	state := "disabled"
	if reply.Enabled {
		state = "enabled"
	}
	fmt.Fprintf(stdout, "accentd %s\n", reply.Version)
	fmt.Fprintf(stdout, "state:      %s\n", state)
	fmt.Fprintf(stdout, "locale:     %s\n", reply.ActiveLocale)
	fmt.Fprintf(stdout, "threshold:  %d ms\n", reply.ThresholdMs)
	if len(reply.Devices) == 0 {
		fmt.Fprintln(stdout, "devices:    (none grabbed)")
	} else {
		fmt.Fprintf(stdout, "devices:    %s\n", strings.Join(reply.Devices, ", "))
	}
	return exitOK
}

func cmdSetLocale(sockPath, name string) int {
	client, err := dial(sockPath)
	if err != nil {
		return exitUnreachable
	}
	defer client.Close()

	reply, err := client.Call(ipc.Message{Type: ipc.TypeSetLocale, Name: name})
	if err != nil {
		fmt.Fprintf(stderr, "accentctl: set-locale request failed: %v\n", err)
		return exitUnreachable
	}
	if reply.Type == ipc.TypeError {
		fmt.Fprintf(stderr, "accentctl: %s\n", reply.Message)
		return exitFailure
	}
	fmt.Fprintf(stdout, "locale set to %s\n", name)
	return exitOK
}

func cmdSetEnabled(sockPath string, msgType ipc.MessageType) int {
	client, err := dial(sockPath)
	if err != nil {
		return exitUnreachable
	}
	defer client.Close()

	reply, err := client.Call(ipc.Message{Type: msgType})
	if err != nil {
		fmt.Fprintf(stderr, "accentctl: request failed: %v\n", err)
		return exitUnreachable
	}
	if reply.Type == ipc.TypeError {
		fmt.Fprintf(stderr, "accentctl: %s\n", reply.Message)
		return exitFailure
	}

	state := "disabled"
	if reply.Enabled {
		state = "enabled"
	}
	fmt.Fprintf(stdout, "accentd %s\n", state)
	return exitOK
}

func dial(sockPath string) (*ipc.Client, error) {
	client, err := ipc.Dial(sockPath)
	if err != nil {
		fmt.Fprintf(stderr, "accentctl: cannot reach accentd at %s: %v\n", sockPath, err)
		return nil, err
	}
	return client, nil
}
