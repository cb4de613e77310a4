// accentd is a Linux input-layer daemon that reproduces macOS's
// press-and-hold accent popup: grab every keyboard, watch for an
// accent-eligible letter key held past a threshold, and offer its accented
// variants through a synthesized virtual keyboard.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/gildo/accentd/internal/accent"
	"github.com/gildo/accentd/internal/config"
	"github.com/gildo/accentd/internal/device"
	"github.com/gildo/accentd/internal/ipc"
	"github.com/gildo/accentd/internal/logging"
	"github.com/gildo/accentd/internal/supervisor"
	"github.com/gildo/accentd/internal/synth"
	"github.com/gildo/accentd/internal/watcher"
)

const defaultSocketPath = "/run/accentd.sock"

// daemonizeEnv marks the re-exec'd child so it knows not to fork again.
const daemonizeEnv = "ACCENTD_DAEMONIZED"

func main() {
	var (
		configPath = flag.String("config", "", "path to config.toml (default ~/.config/accentd/config.toml)")
		socketPath = flag.String("socket", "", "control-plane socket path (default /run/accentd.sock, or /tmp/accentd.sock if not root)")
		foreground = flag.Bool("foreground", false, "log to stderr instead of the default log file")
		daemonize  = flag.Bool("daemonize", false, "detach into the background, logging to the default log file")
		logLevel   = flag.String("log-level", "info", "debug, info, warn, or error")
	)
	flag.Usage = usage
	flag.Parse()

	if *daemonize && os.Getenv(daemonizeEnv) != "1" {
		if err := spawnDetached(); err != nil {
			fmt.Fprintf(os.Stderr, "accentd: failed to daemonize: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logCfg := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(*logLevel); err == nil {
		logCfg.Level = lvl
	}
	logCfg.Output = "both"
	if *foreground {
		logCfg.Output = "stderr"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "accentd: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(*configPath, *socketPath, logger); err != nil {
		logger.Error("accentd exiting", "error", err)
		os.Exit(1)
	}
}

// spawnDetached re-execs the current binary with the daemonize flag
// stripped and ACCENTD_DAEMONIZED set, detached into its own session so
// it survives the parent's terminal closing.
func spawnDetached() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	args := make([]string, 0, len(os.Args)-1)
	for _, a := range os.Args[1:] {
		if a != "-daemonize" && a != "--daemonize" {
			args = append(args, a)
		}
	}

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), daemonizeEnv+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = getDaemonSysProcAttr()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached process: %w", err)
	}
	fmt.Printf("accentd started in background (pid %d)\n", cmd.Process.Pid)
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `accentd - press-and-hold accent popup daemon

USAGE:
    accentd [flags]

FLAGS:`)
	flag.PrintDefaults()
}

func run(configPath, socketPath string, logger *logging.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := accent.NewRegistry(config.UserLocaleDir(), config.SystemLocaleDir)

	handles, err := device.Discover(func(path string, err error) {
		logger.Warn("skipping input device", "path", path, "error", err)
	})
	if err != nil {
		return fmt.Errorf("discover keyboards: %w", err)
	}
	if len(handles) == 0 {
		logger.Warn("no keyboards grabbed at startup; accentd will wait for hotplug")
	}
	for _, h := range handles {
		logger.Info("grabbed keyboard", "path", h.Path, "name", h.Name, "id", h.ID)
	}

	uinputDev, err := synth.CreateUinputDevice()
	if err != nil {
		for _, h := range handles {
			h.Close()
		}
		return fmt.Errorf("create virtual keyboard: %w", err)
	}
	synthesizer := synth.New(uinputDev)

	devWatcher, err := watcher.New("/dev/input")
	if err != nil {
		logger.Warn("hotplug watching disabled", "error", err)
		devWatcher = nil
	}

	if socketPath == "" {
		socketPath = resolveSocketPath()
	}
	server, err := ipc.NewServer(socketPath, os.Geteuid() == 0, logger)
	if err != nil {
		uinputDev.Close()
		for _, h := range handles {
			h.Close()
		}
		return fmt.Errorf("start control plane: %w", err)
	}
	logger.Info("control plane listening", "socket", socketPath)

	sup, err := supervisor.New(cfg, registry, logger, synthesizer, uinputDev.Close, server, handles, devWatcher)
	if err != nil {
		server.Close()
		uinputDev.Close()
		for _, h := range handles {
			h.Close()
		}
		return fmt.Errorf("initialize supervisor: %w", err)
	}

	logger.Info("accentd started", "version", supervisor.Version)
	return sup.Run()
}

// resolveSocketPath returns the system-wide socket path when running as
// root, falling back to a per-user path so accentd can also run
// unprivileged during development (grabbing devices still requires
// appropriate permissions on /dev/input, independent of the socket).
func resolveSocketPath() string {
	if os.Geteuid() == 0 {
		return defaultSocketPath
	}
	return "/tmp/accentd.sock"
}
