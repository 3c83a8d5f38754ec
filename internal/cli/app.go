// Package cli implements the mimic subcommands on top of the registry,
// the backend and the say orchestrator.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mimicvoice/mimic/internal/backend"
	"github.com/mimicvoice/mimic/internal/config"
	"github.com/mimicvoice/mimic/internal/output"
	"github.com/mimicvoice/mimic/internal/registry"
)

// App carries the resolved configuration and I/O for one invocation.
type App struct {
	Cfg        config.Config
	ConfigPath string
	Printer    *output.Printer
	Log        *slog.Logger
	Stdin      io.Reader
	Version    string
}

const usage = `mimic - voice cloning text to speech

Usage:
  mimic say [flags] [text]        speak text in a cloned voice
  mimic generate [flags] [text]   synthesize to a file without playback
  mimic voice <subcommand>        manage voices (add, list, info, delete, default)
  mimic history [-limit N]        show recent generations
  mimic devices                   list playback devices
  mimic config <show|set>         inspect or change configuration
  mimic serve                     run as a speech service on the bus

Global flags (before the subcommand):
  -config PATH     configuration file
  -data-dir PATH   override the data directory
  -json            machine-readable output
  -version         print version and exit
`

// Run dispatches one subcommand. The returned error carries a taxonomy
// code when one applies; main maps it to an exit status.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.Printer.Printf("%s", usage)
		return fmt.Errorf("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "say":
		return a.runSay(ctx, rest)
	case "generate":
		return a.runGenerate(ctx, rest)
	case "voice":
		return a.runVoice(ctx, rest)
	case "history":
		return a.runHistory(ctx, rest)
	case "devices":
		return a.runDevices(ctx, rest)
	case "config":
		return a.runConfig(ctx, rest)
	case "serve":
		return a.runServe(ctx, rest)
	case "help", "-h", "--help":
		a.Printer.Printf("%s", usage)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (a *App) openStore() (*registry.Store, error) {
	return registry.Open(a.Cfg.DataDir)
}

func (a *App) openBackend() (backend.Backend, error) {
	return backend.New(a.Cfg.Backend, a.Cfg.DefaultModel, a.Log)
}

// readText resolves the utterance: -file wins, then the positional
// argument, then stdin.
func (a *App) readText(file string, args []string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read text file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	data, err := io.ReadAll(a.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
