package consent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Terminal asks for consent on an interactive terminal.
type Terminal struct {
	In        io.Reader
	Out       io.Writer
	AssumeYes bool
}

func NewTerminal(in io.Reader, out io.Writer, assumeYes bool) *Terminal {
	return &Terminal{In: in, Out: out, AssumeYes: assumeYes}
}

func (t *Terminal) Request(ctx context.Context, p Prompt) (*Result, error) {
	if err := t.render(p); err != nil {
		return nil, err
	}
	if t.AssumeYes {
		fmt.Fprintln(t.Out, "approved (--yes)")
		return &Result{Accepted: true}, nil
	}
	if f, ok := t.In.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		fmt.Fprintln(t.Out, "rejected: stdin is not a terminal")
		return &Result{Accepted: false, Extra: map[string]any{"reason": "non-interactive"}}, nil
	}
	fmt.Fprint(t.Out, "Sign this transaction? [y/N]: ")

	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(t.In).ReadString('\n')
		if err != nil && line == "" {
			errs <- err
			return
		}
		lines <- line
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errs:
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	case line := <-lines:
		answer := strings.ToLower(strings.TrimSpace(line))
		return &Result{Accepted: answer == "y" || answer == "yes"}, nil
	}
}

func (t *Terminal) render(p Prompt) error {
	payload, err := json.MarshalIndent(p.Payload, "  ", "  ")
	if err != nil {
		return fmt.Errorf("render consent prompt: %w", err)
	}
	fmt.Fprintf(t.Out, "Signature request #%d\n", p.ID)
	fmt.Fprintf(t.Out, "  origin:     %s\n", p.Origin)
	fmt.Fprintf(t.Out, "  blockchain: %s\n", p.Blockchain)
	fmt.Fprintf(t.Out, "  request:\n  %s\n", payload)
	return nil
}
