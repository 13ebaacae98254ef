// Package ui abstracts how operations talk to the user.
//
// Operations and the command flow only ever call the Interface methods; the
// bound variant decides whether that means logging and answering with a
// default, or prompting a person and waiting.
package ui

// Interface is the collaborator bound to a command flow.
type Interface interface {
	// Confirm asks a yes/no question.
	Confirm(prompt string) bool
	// ReportProgress reports a completed fraction in [0, 1].
	ReportProgress(fraction float64, message string)
	// ReportFailure surfaces a failed operation.
	ReportFailure(err error)
	// IsCancelled is polled at safe points during long computations.
	IsCancelled() bool
}
