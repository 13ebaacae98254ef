package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

// Interactive prompts on out and blocks on in for answers. Cancel may be
// called from any goroutine, typically a signal handler; the flag stays set
// until Reset.
type Interactive struct {
	mu        sync.Mutex
	in        *bufio.Reader
	out       io.Writer
	cancelled atomic.Bool
	lastPct   int
}

var _ Interface = (*Interactive)(nil)

// NewInteractive creates an interactive interface over in and out.
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: bufio.NewReader(in), out: out, lastPct: -1}
}

// IsTerminal reports whether f is attached to a terminal, which is how the
// CLI decides between Interactive and Console.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Confirm prints the prompt and reads one line. Only y or yes (any case)
// confirm; end of input declines.
func (i *Interactive) Confirm(prompt string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	fmt.Fprintf(i.out, "%s [y/N]: ", prompt)
	line, err := i.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(i.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// ReadLine reads the next input line for a command prompt. It shares the
// reader with Confirm so answers and commands never interleave.
func (i *Interactive) ReadLine(prompt string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	fmt.Fprint(i.out, prompt)
	line, err := i.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReportProgress prints whole-percent steps only.
func (i *Interactive) ReportProgress(fraction float64, message string) {
	pct := int(fraction * 100)
	i.mu.Lock()
	defer i.mu.Unlock()
	if pct == i.lastPct {
		return
	}
	i.lastPct = pct
	if pct >= 100 {
		i.lastPct = -1
	}
	fmt.Fprintf(i.out, "  %3d%% %s\n", pct, message)
}

func (i *Interactive) ReportFailure(err error) {
	fmt.Fprintf(i.out, "error: %v\n", err)
}

func (i *Interactive) IsCancelled() bool { return i.cancelled.Load() }

// Cancel requests that the running operation stop at its next checkpoint.
func (i *Interactive) Cancel() { i.cancelled.Store(true) }

// Reset clears a previous cancellation.
func (i *Interactive) Reset() { i.cancelled.Store(false) }
