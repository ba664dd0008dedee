package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"docindex/internal/domain"
)

// CommandRunner runs an external command with stdin and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return out, err
}

// PDF extracts text with poppler's pdftotext. Without the tool installed,
// PDFs are reported as unsupported.
type PDF struct {
	command  string
	runner   CommandRunner
	lookPath func(string) (string, error)
}

func NewPDF() *PDF {
	return &PDF{
		command:  "pdftotext",
		runner:   execRunner{},
		lookPath: exec.LookPath,
	}
}

// NewPDFWithRunner runs command through runner. The tool is assumed present.
func NewPDFWithRunner(command string, runner CommandRunner) *PDF {
	return &PDF{
		command:  command,
		runner:   runner,
		lookPath: func(name string) (string, error) { return name, nil },
	}
}

func (p *PDF) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return "", fmt.Errorf("%w: %s is not a PDF", domain.ErrExtraction, filename)
	}
	if _, err := p.lookPath(p.command); err != nil {
		return "", fmt.Errorf("%w: %s needs %s (brew install poppler, apt install poppler-utils)",
			domain.ErrUnsupportedFormat, filename, p.command)
	}

	out, err := p.runner.Run(ctx, data, p.command, "-layout", "-enc", "UTF-8", "-", "-")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %s failed on %s: %v", domain.ErrExtraction, p.command, filename, err)
	}

	// pdftotext separates pages with form feeds.
	text := strings.ReplaceAll(string(out), "\f", "\n\n")
	return strings.TrimSpace(text), nil
}
