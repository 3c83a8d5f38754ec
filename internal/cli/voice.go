package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/mimicvoice/mimic/internal/audio"
	"github.com/mimicvoice/mimic/internal/config"
	"github.com/mimicvoice/mimic/internal/registry"
)

const voiceUsage = `Usage:
  mimic voice add -name NAME -audio FILE -text TRANSCRIPT [-language LANG] [-description TEXT]
  mimic voice list
  mimic voice info NAME
  mimic voice delete NAME
  mimic voice default NAME
`

func (a *App) runVoice(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.Printer.Printf("%s", voiceUsage)
		return fmt.Errorf("voice requires a subcommand")
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "add":
		return a.runVoiceAdd(ctx, rest)
	case "list":
		return a.runVoiceList(rest)
	case "info":
		return a.runVoiceInfo(rest)
	case "delete":
		return a.runVoiceDelete(rest)
	case "default":
		return a.runVoiceDefault(rest)
	default:
		return fmt.Errorf("unknown voice subcommand: %s", sub)
	}
}

func (a *App) runVoiceAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("voice add", flag.ContinueOnError)
	fs.SetOutput(discardWriter{})
	var (
		name        = fs.String("name", "", "voice name (required)")
		audioPath   = fs.String("audio", "", "reference recording (required)")
		text        = fs.String("text", "", "transcript of the recording (required)")
		language    = fs.String("language", "", "language code")
		description = fs.String("description", "", "free-form description")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *audioPath == "" || *text == "" {
		return fmt.Errorf("voice add requires -name, -audio and -text")
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}

	voice, err := store.Get(*name)
	if errors.Is(err, registry.ErrNotFound) {
		voice, err = store.Create(*name, orDefault(*language, a.Cfg.DefaultLanguage), *description)
	}
	if err != nil {
		return err
	}

	sample, err := store.AddSample(voice.Name, *audioPath, *text)
	if err != nil {
		return err
	}

	if dur, err := audio.FileDuration(sample.AudioPath); err == nil {
		a.Printer.Printf("added %.1fs sample to voice %s\n", dur, voice.Name)
	} else {
		a.Printer.Printf("added sample to voice %s\n", voice.Name)
	}
	return a.Printer.Result(map[string]any{"voice": voice.Name, "sample_id": sample.ID})
}

func (a *App) runVoiceList(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("voice list takes no arguments")
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	voices, err := store.List()
	if err != nil {
		return err
	}

	if len(voices) == 0 {
		a.Printer.Printf("no voices yet; add one with: mimic voice add\n")
	}
	for _, v := range voices {
		marker := ""
		if v.Name == a.Cfg.DefaultVoice {
			marker = " (default)"
		}
		a.Printer.Printf("%s%s  [%s]  %d sample(s)\n", v.Name, marker, v.Language, len(v.Samples))
	}
	return a.Printer.Result(voices)
}

func (a *App) runVoiceInfo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("voice info takes exactly one name")
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	voice, err := store.Get(args[0])
	if err != nil {
		return err
	}

	a.Printer.Printf("name:        %s\n", voice.Name)
	a.Printer.Printf("language:    %s\n", voice.Language)
	if voice.Description != "" {
		a.Printer.Printf("description: %s\n", voice.Description)
	}
	a.Printer.Printf("created:     %s\n", voice.CreatedAt)
	for _, s := range voice.Samples {
		a.Printer.Printf("sample %s: %s (%q)\n", s.ID[:8], s.AudioPath, s.Text)
	}
	return a.Printer.Result(voice)
}

func (a *App) runVoiceDelete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("voice delete takes exactly one name")
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	if err := store.Delete(args[0]); err != nil {
		return err
	}
	a.Printer.Printf("deleted voice %s\n", args[0])
	return a.Printer.Result(map[string]string{"deleted": args[0]})
}

func (a *App) runVoiceDefault(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("voice default takes exactly one name")
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	voice, err := store.Get(args[0])
	if err != nil {
		return err
	}

	a.Cfg.DefaultVoice = voice.Name
	path := a.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.Save(a.Cfg, path); err != nil {
		return err
	}
	a.Printer.Printf("default voice is now %s\n", voice.Name)
	return a.Printer.Result(map[string]string{"default_voice": voice.Name})
}
