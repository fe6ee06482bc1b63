// Package main is the entry point for the yacd editor daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dshills/yacd/internal/app"
	"github.com/dshills/yacd/internal/config"
	"github.com/dshills/yacd/internal/lsp"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		socketPath  string
		configPath  string
		logLevel    string
		idleTimeout time.Duration
		showVersion bool
	)

	flag.StringVar(&socketPath, "socket", "", "Unix socket path (default: runtime dir)")
	flag.StringVar(&configPath, "config", "", "Path to TOML server-table override")
	flag.StringVar(&logLevel, "log-level", "", "Log level: off, debug, info, warn, error (default: $YAC_LOG or info)")
	flag.DurationVar(&idleTimeout, "idle-timeout", 0, "Shut down language servers idle this long (0 disables)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion || flag.Arg(0) == "version" {
		fmt.Printf("yacd %s (%s)\n", version, commit)
		return 0
	}

	logger := buildLogger(logLevel)
	app.SetLogger(logger)

	table, err := config.LoadServerTable(configPath, lsp.DefaultServerTable())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if socketPath == "" {
		socketPath = defaultSocketPath()
	}

	daemon, err := app.New(app.Config{
		SocketPath:  socketPath,
		ServerTable: table,
		IdleTimeout: idleTimeout,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		daemon.Stop()
	}()

	if err := daemon.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// buildLogger maps the -log-level flag (falling back to $YAC_LOG)
// onto the daemon logger. "off" disables logging entirely.
func buildLogger(level string) *app.Logger {
	if level == "" {
		level = os.Getenv("YAC_LOG")
	}

	cfg := app.DefaultLoggerConfig()
	logger := app.NewLogger(cfg)
	switch level {
	case "", "info":
		logger.SetLevel(app.LogLevelInfo)
	case "off", "0":
		logger.Disable()
	default:
		logger.SetLevel(app.ParseLogLevel(level))
	}
	return logger
}

// defaultSocketPath puts the socket in the user's runtime dir when
// available, /tmp otherwise.
func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "yacd.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("yacd-%d.sock", os.Getuid()))
}
