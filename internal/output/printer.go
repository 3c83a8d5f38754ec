// Package output renders command results for humans or machines.
// Results go to stdout; errors always go to stderr, as one line of
// prose in human mode or a single JSON record in json mode.
package output

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	FormatHuman = "human"
	FormatJSON  = "json"
	FormatPlain = "plain"
)

// Printer writes command output in the configured format.
type Printer struct {
	format string
	out    io.Writer
	errOut io.Writer
}

func New(format string, out, errOut io.Writer) *Printer {
	return &Printer{format: format, out: out, errOut: errOut}
}

// JSON reports whether machine-readable mode is active.
func (p *Printer) JSON() bool { return p.format == FormatJSON }

// Result emits a structured success record. In human and plain modes
// the record is ignored and callers print prose via Printf.
func (p *Printer) Result(v any) error {
	if !p.JSON() {
		return nil
	}
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Printf writes human-facing prose. Suppressed in json mode.
func (p *Printer) Printf(format string, args ...any) {
	if p.JSON() {
		return
	}
	fmt.Fprintf(p.out, format, args...)
}

// Warnf writes a one-line diagnostic to stderr. Suppressed in json mode.
func (p *Printer) Warnf(format string, args ...any) {
	if p.JSON() {
		return
	}
	fmt.Fprintf(p.errOut, format+"\n", args...)
}

// Error emits one user-facing failure record.
func (p *Printer) Error(code, message string) {
	if p.JSON() {
		record := map[string]any{
			"error": map[string]string{"code": code, "message": message},
		}
		_ = json.NewEncoder(p.errOut).Encode(record)
		return
	}
	fmt.Fprintf(p.errOut, "error: %s\n", message)
}
