package cli

import (
	"context"
	"flag"
)

func (a *App) runHistory(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(discardWriter{})
	limit := fs.Int("limit", 20, "maximum records to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	records, err := store.History(*limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		a.Printer.Printf("no generations yet\n")
	}
	for _, g := range records {
		text := g.Text
		if len(text) > 40 {
			text = text[:40] + "..."
		}
		a.Printer.Printf("%s  %s  %.1fs  %q\n", g.CreatedAt, g.VoiceName, g.Duration, text)
	}
	return a.Printer.Result(records)
}
