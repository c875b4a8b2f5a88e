// Package cli implements a minimal ioh.Handler over standard input and
// output: a straightforward adapter for local/demo use, not a product
// front-end.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"qa-orchestrator/ioh"
)

// Handler prints structured output as readable lines and reads feedback
// from standard input.
type Handler struct {
	reader *bufio.Reader
	out    *os.File
}

// New builds a CLI Handler over os.Stdin/os.Stdout.
func New() *Handler {
	return &Handler{reader: bufio.NewReader(os.Stdin), out: os.Stdout}
}

func (h *Handler) Output(_ context.Context, kind ioh.Kind, data any) error {
	switch kind {
	case ioh.KindAnswer:
		fmt.Fprintf(h.out, "\n💬 %v\n", data)
	case ioh.KindError:
		fmt.Fprintf(h.out, "\n⚠️  %v\n", data)
	case ioh.KindStep, ioh.KindPlan:
		fmt.Fprintf(h.out, "\n▶ %v\n", data)
	default:
		fmt.Fprintf(h.out, "%v\n", data)
	}
	return nil
}

func (h *Handler) Input(_ context.Context, prompt string, _ any) (string, error) {
	fmt.Fprintf(h.out, "%s ", prompt)
	line, err := h.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return trimNewline(line), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
