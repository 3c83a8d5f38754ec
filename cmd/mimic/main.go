package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mimicvoice/mimic/internal/cli"
	"github.com/mimicvoice/mimic/internal/config"
	"github.com/mimicvoice/mimic/internal/output"
	"github.com/mimicvoice/mimic/internal/say"
)

var version = "0.1.0-dev"

const (
	exitOK          = 0
	exitError       = 1
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		dataDir     string
		jsonOutput  bool
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to configuration file")
	flag.StringVar(&dataDir, "data-dir", "", "override the data directory")
	flag.BoolVar(&jsonOutput, "json", false, "machine-readable output")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return exitOK
	}

	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	format := cfg.Output.Format
	if jsonOutput {
		format = output.FormatJSON
	}
	printer := output.New(format, os.Stdout, os.Stderr)

	logger := newLogger(cfg.LogLevel)

	app := &cli.App{
		Cfg:        cfg,
		ConfigPath: configPath,
		Printer:    printer,
		Log:        logger,
		Stdin:      os.Stdin,
		Version:    version,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, flag.Args()); err != nil {
		code := say.CodeOf(err)
		if code == "" {
			code = "ERROR"
		}
		if code == say.CodeInterrupted || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			printer.Error(say.CodeInterrupted, "interrupted")
			return exitInterrupted
		}
		printer.Error(code, err.Error())
		return exitError
	}
	return exitOK
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
