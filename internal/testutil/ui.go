package testutil

import (
	"sync"

	"github.com/roach88/meshflow/internal/ui"
)

// Progress is one recorded ReportProgress call.
type Progress struct {
	Fraction float64
	Message  string
}

// RecordingUI is a scripted ui.Interface for tests.
//
// Confirm pops answers from the script and falls back to Default once the
// script is exhausted. When CancelAfter is positive, IsCancelled turns true
// after that many progress reports.
//
// Thread-safety: all methods are safe for concurrent use.
type RecordingUI struct {
	mu          sync.Mutex
	Answers     []bool
	Default     bool
	CancelAfter int

	prompts  []string
	progress []Progress
	failures []error
}

var _ ui.Interface = (*RecordingUI)(nil)

// NewRecordingUI creates a UI answering Confirm with the given answers,
// then true.
func NewRecordingUI(answers ...bool) *RecordingUI {
	return &RecordingUI{Answers: answers, Default: true}
}

func (r *RecordingUI) Confirm(prompt string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	if len(r.Answers) == 0 {
		return r.Default
	}
	a := r.Answers[0]
	r.Answers = r.Answers[1:]
	return a
}

func (r *RecordingUI) ReportProgress(fraction float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, Progress{fraction, message})
}

func (r *RecordingUI) ReportFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *RecordingUI) IsCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.CancelAfter > 0 && len(r.progress) >= r.CancelAfter
}

// Prompts returns every Confirm prompt so far.
func (r *RecordingUI) Prompts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts...)
}

// Progress returns every progress report so far.
func (r *RecordingUI) Progress() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.progress...)
}

// Failures returns every reported failure so far.
func (r *RecordingUI) Failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failures...)
}
