//go:build unix

// Command keystash runs the capture device control plane against the FIFO
// hardware simulation.
//
// Usage:
//
//	keystash [options] <bus-dir>
//
// The device creates its own subdirectory (device-{uuid}/) under the bus
// directory. See package hal/fifo for the pipes it exposes.
//
// Options:
//
//	-config path     TOML configuration file
//	-storage dir     directory backing the persistent log (default: in memory)
//	-mode name       boot mode, visible or covert (overrides the config file)
//	-v               enable verbose (debug) logging
//	-log format      log format: text, json or console
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/keystash-dev/keystash/hal/fifo"
	"github.com/keystash-dev/keystash/mode"
	"github.com/keystash-dev/keystash/pkg"
	"github.com/keystash-dev/keystash/runloop"
	"github.com/keystash-dev/keystash/store"
)

// component identifies this executable for structured logging.
const component pkg.Component = "keystash"

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	storageDir := flag.String("storage", "", "directory backing the persistent log (default: in memory)")
	modeName := flag.String("mode", "", "boot mode: visible or covert")
	verbose := flag.Bool("v", false, "enable verbose (debug) logging")
	logFormat := flag.String("log", "text", "log format: text, json or console")
	flag.Parse()

	if flag.NArg() < 1 {
		pkg.LogError(component, "missing bus directory argument",
			"usage", "keystash [options] <bus-dir>")
		os.Exit(1)
	}

	// Set up logging
	format, err := pkg.ParseLogFormat(*logFormat)
	if err != nil {
		pkg.LogError(component, "invalid log format", "error", err)
		os.Exit(1)
	}
	pkg.SetLogFormat(format)
	if *verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	} else {
		pkg.SetLogLevel(slog.LevelInfo)
	}

	cfg := runloop.DefaultConfig()
	if *configPath != "" {
		if cfg, err = runloop.LoadConfig(*configPath); err != nil {
			pkg.LogError(component, "failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if *modeName != "" {
		m, err := mode.ParseMode(*modeName)
		if err != nil {
			pkg.LogError(component, "invalid mode", "error", err)
			os.Exit(1)
		}
		cfg.Mode = m
	}

	var media store.Media = store.NewMemMedia()
	if *storageDir != "" {
		media = store.NewDirMedia(*storageDir)
	}

	h := fifo.New(flag.Arg(0))
	if err := h.Init(); err != nil {
		pkg.LogError(component, "failed to initialize HAL", "error", err)
		os.Exit(1)
	}

	loop, err := runloop.New(cfg, media, h, h, h)
	if err != nil {
		h.Close()
		pkg.LogError(component, "failed to create run loop", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pkg.LogInfo(component, "starting",
		"deviceDir", h.DeviceDir(),
		"mode", cfg.Mode)

	err = loop.Run(ctx)
	h.Close()

	switch {
	case err == nil:
		pkg.LogInfo(component, "stopped")
	case pkg.IsFatal(err):
		pkg.LogError(component, "fatal error, halting", "error", err)
		os.Exit(1)
	case errors.Is(err, pkg.ErrEngineNotReady):
		pkg.LogError(component, "capture engine did not start", "error", err)
		os.Exit(1)
	default:
		pkg.LogError(component, "run loop failed", "error", err)
		os.Exit(1)
	}
}
