package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/mimicvoice/mimic/internal/say"
)

func (a *App) runSay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("say", flag.ContinueOnError)
	fs.SetOutput(discardWriter{})
	var (
		file     = fs.String("file", "", "read text from a file")
		save     = fs.String("save", "", "save audio to this path")
		voice    = fs.String("voice", "", "voice to speak with")
		model    = fs.String("model", "", "model size")
		instruct = fs.String("instruct", "", "style instruction")
		language = fs.String("language", "", "language code")
		seed     = fs.Int64("seed", -1, "generation seed, -1 for random")
		noPlay   = fs.Bool("no-play", false, "skip playback")
		noStream = fs.Bool("no-stream", false, "generate in one pass")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := a.readText(*file, fs.Args())
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("no text to speak")
	}

	req := say.Request{
		Text:      text,
		VoiceName: a.voiceOrDefault(*voice),
		Language:  *language,
		ModelSize: orDefault(*model, a.Cfg.DefaultModel),
		Instruct:  *instruct,
		SavePath:  *save,
		Play:      !*noPlay,
		NoStream:  *noStream,
	}
	if *seed >= 0 {
		req.Seed = seed
	}

	res, err := a.runOrchestrator(ctx, req)
	if err != nil {
		return err
	}

	a.Printer.Printf("spoke as %s (%.1fs) -> %s\n", res.Voice, res.Duration, res.AudioPath)
	return a.Printer.Result(res)
}

func (a *App) runGenerate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(discardWriter{})
	var (
		out      = fs.String("o", "", "output wav path (required)")
		file     = fs.String("file", "", "read text from a file")
		voice    = fs.String("voice", "", "voice to speak with")
		model    = fs.String("model", "", "model size")
		instruct = fs.String("instruct", "", "style instruction")
		language = fs.String("language", "", "language code")
		seed     = fs.Int64("seed", -1, "generation seed, -1 for random")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("generate requires -o output path")
	}

	text, err := a.readText(*file, fs.Args())
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("no text to synthesize")
	}

	req := say.Request{
		Text:      text,
		VoiceName: a.voiceOrDefault(*voice),
		Language:  *language,
		ModelSize: orDefault(*model, a.Cfg.DefaultModel),
		Instruct:  *instruct,
		SavePath:  *out,
		Play:      false,
		NoStream:  true,
	}
	if *seed >= 0 {
		req.Seed = seed
	}

	res, err := a.runOrchestrator(ctx, req)
	if err != nil {
		return err
	}

	a.Printer.Printf("generated %.1fs of audio -> %s\n", res.Duration, res.AudioPath)
	return a.Printer.Result(res)
}

func (a *App) runOrchestrator(ctx context.Context, req say.Request) (*say.Result, error) {
	if req.VoiceName == "" {
		return nil, fmt.Errorf("no voice given and no default voice configured")
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	b, err := a.openBackend()
	if err != nil {
		return nil, err
	}
	defer b.Close()

	o := say.New(b, store, a.Cfg.Audio, a.Log)
	o.Warnf = a.Printer.Warnf
	return o.Run(ctx, req)
}

func (a *App) voiceOrDefault(voice string) string {
	if voice != "" {
		return voice
	}
	return a.Cfg.DefaultVoice
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// discardWriter silences flag's own error printing; errors surface
// through the printer instead.
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
