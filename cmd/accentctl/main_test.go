package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/gildo/accentd/internal/ipc"
	"github.com/gildo/accentd/internal/logging"
)

func startFakeDaemon(t *testing.T, respond func(ipc.Message) ipc.Message) string {
	t.Helper()

	sockPath := filepath.Join(t.TempDir(), "accentd.sock")
	logger, err := logging.New(logging.DefaultConfig())
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	server, err := ipc.NewServer(sockPath, false, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	go server.Serve()
	go func() {
		for in := range server.Inbound() {
			in.Reply(respond(in.Msg))
		}
	}()

	return sockPath
}

func runWithEnv(t *testing.T, sockPath string, args []string) (int, string, string) {
	t.Helper()
	t.Setenv("ACCENTD_SOCK", sockPath)

	var outBuf, errBuf bytes.Buffer
	origOut, origErr := stdout, stderr
	stdout, stderr = &outBuf, &errBuf
	defer func() { stdout, stderr = origOut, origErr }()

	code := run(args)
	return code, outBuf.String(), errBuf.String()
}

func TestStatusPrintsDaemonState(t *testing.T) {
	sockPath := startFakeDaemon(t, func(ipc.Message) ipc.Message {
		return ipc.Status(true, "it", []string{"AT Translated Set 2 keyboard"}, 300, "0.1.0")
	})

	code, out, _ := runWithEnv(t, sockPath, []string{"status"})
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}
	if !bytes.Contains([]byte(out), []byte("enabled")) {
		t.Errorf("expected status output to mention enabled state, got %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("it")) {
		t.Errorf("expected status output to mention locale, got %q", out)
	}
}

func TestSetLocaleSuccess(t *testing.T) {
	sockPath := startFakeDaemon(t, func(msg ipc.Message) ipc.Message {
		if msg.Name != "fr" {
			return ipc.Error("unknown_locale", "unexpected locale in test")
		}
		return ipc.Ok()
	})

	code, _, _ := runWithEnv(t, sockPath, []string{"set-locale", "fr"})
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}
}

func TestSetLocaleUnknownReturnsFailure(t *testing.T) {
	sockPath := startFakeDaemon(t, func(ipc.Message) ipc.Message {
		return ipc.Error("unknown_locale", `no accent table for locale "xx"`)
	})

	code, _, errOut := runWithEnv(t, sockPath, []string{"set-locale", "xx"})
	if code != exitFailure {
		t.Fatalf("exit code = %d, want %d", code, exitFailure)
	}
	if errOut == "" {
		t.Error("expected an error message on stderr")
	}
}

func TestToggleReportsNewState(t *testing.T) {
	sockPath := startFakeDaemon(t, func(ipc.Message) ipc.Message {
		return ipc.OkEnabled(false)
	})

	code, out, _ := runWithEnv(t, sockPath, []string{"toggle"})
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}
	if !bytes.Contains([]byte(out), []byte("disabled")) {
		t.Errorf("expected output to report disabled, got %q", out)
	}
}

func TestUnreachableSocketExitsThree(t *testing.T) {
	code, _, _ := runWithEnv(t, filepath.Join(t.TempDir(), "nonexistent.sock"), []string{"status"})
	if code != exitUnreachable {
		t.Fatalf("exit code = %d, want %d", code, exitUnreachable)
	}
}

func TestMissingArgsExitsUsage(t *testing.T) {
	code := run(nil)
	if code != exitUsage {
		t.Fatalf("exit code = %d, want %d", code, exitUsage)
	}
}

func TestSetLocaleMissingNameExitsUsage(t *testing.T) {
	code := run([]string{"set-locale"})
	if code != exitUsage {
		t.Fatalf("exit code = %d, want %d", code, exitUsage)
	}
}

func TestUnknownCommandExitsUsage(t *testing.T) {
	sockPath := startFakeDaemon(t, func(ipc.Message) ipc.Message { return ipc.Ok() })
	code, _, _ := runWithEnv(t, sockPath, []string{"frobnicate"})
	if code != exitUsage {
		t.Fatalf("exit code = %d, want %d", code, exitUsage)
	}
}
