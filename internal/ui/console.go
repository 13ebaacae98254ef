package ui

import "log/slog"

// Console is the non-interactive variant: it answers every confirmation
// with a fixed default, never cancels, and logs instead of printing.
type Console struct {
	answer bool
	logger *slog.Logger
}

var _ Interface = (*Console)(nil)

// NewConsole creates a console that answers Confirm with answer.
func NewConsole(answer bool, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{answer: answer, logger: logger}
}

func (c *Console) Confirm(prompt string) bool {
	c.logger.Info("confirm", "prompt", prompt, "answer", c.answer)
	return c.answer
}

func (c *Console) ReportProgress(fraction float64, message string) {
	c.logger.Debug("progress", "fraction", fraction, "message", message)
}

func (c *Console) ReportFailure(err error) {
	c.logger.Error("operation failed", "error", err)
}

func (*Console) IsCancelled() bool { return false }
