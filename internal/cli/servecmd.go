package cli

import (
	"context"
	"fmt"

	"github.com/mimicvoice/mimic/internal/serve"
)

func (a *App) runServe(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("serve takes no arguments")
	}
	rt := serve.New(a.Cfg, a.Log)
	return rt.Start(ctx)
}
