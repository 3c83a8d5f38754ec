package cli

import (
	"context"
	"fmt"

	"github.com/mimicvoice/mimic/internal/audio"
)

func (a *App) runDevices(_ context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("devices takes no arguments")
	}

	devices, err := audio.ListPlaybackDevices()
	if err != nil {
		return fmt.Errorf("enumerate playback devices: %w", err)
	}

	if len(devices) == 0 {
		a.Printer.Printf("no playback devices found\n")
	}
	for _, d := range devices {
		a.Printer.Printf("%s\n", d.String())
	}
	return a.Printer.Result(devices)
}
