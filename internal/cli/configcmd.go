package cli

import (
	"context"
	"fmt"

	"github.com/mimicvoice/mimic/internal/config"
	"gopkg.in/yaml.v3"
)

func (a *App) runConfig(_ context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("config requires a subcommand: show or set")
	}

	switch args[0] {
	case "show":
		return a.runConfigShow()
	case "set":
		return a.runConfigSet(args[1:])
	default:
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

func (a *App) runConfigShow() error {
	data, err := yaml.Marshal(a.Cfg)
	if err != nil {
		return err
	}
	a.Printer.Printf("%s", data)
	return a.Printer.Result(a.Cfg)
}

func (a *App) runConfigSet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("config set takes a key and a value")
	}
	key, value := args[0], args[1]

	switch key {
	case "data_dir":
		a.Cfg.DataDir = value
	case "default_voice":
		a.Cfg.DefaultVoice = value
	case "default_language":
		a.Cfg.DefaultLanguage = value
	case "default_model":
		a.Cfg.DefaultModel = value
	case "log_level":
		a.Cfg.LogLevel = value
	case "output.format":
		a.Cfg.Output.Format = value
	case "backend.mode":
		a.Cfg.Backend.Mode = value
	case "backend.command":
		a.Cfg.Backend.Command = value
	case "backend.endpoint":
		a.Cfg.Backend.Endpoint = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	if err := config.Validate(a.Cfg); err != nil {
		return err
	}

	path := a.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.Save(a.Cfg, path); err != nil {
		return err
	}
	a.Printer.Printf("%s = %s\n", key, value)
	return a.Printer.Result(map[string]string{key: value})
}
