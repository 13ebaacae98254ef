package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/ops"
	"github.com/roach88/meshflow/internal/project"
)

// ValidationIssue is one problem found in a project document.
type ValidationIssue struct {
	Index   int    `json:"index"`
	Tag     string `json:"tag,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Operations int               `json:"operations"`
	Issues     []ValidationIssue `json:"issues,omitempty"`
}

func (r ValidationResult) String() string {
	if r.Valid {
		return fmt.Sprintf("✓ %d operations valid", r.Operations)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✗ %d issue(s) in %d operations", len(r.Issues), r.Operations)
	for _, issue := range r.Issues {
		fmt.Fprintf(&b, "\n  operations[%d] %s: [%s] %s", issue.Index, issue.Tag, issue.Code, issue.Message)
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <project>",
		Short: "Check a project document without running it",
		Long: `Check a project document without touching the kernel.

Every operation's parameters are checked against the operation schema and
every recorded operation id is recomputed. Unlike run, validate reports all
problems instead of stopping at the first.

Exit codes:
  0 - Document is valid
  1 - One or more operations are invalid
  2 - Document could not be read`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	doc, err := project.ReadFile(path)
	if err != nil {
		_ = formatter.Failure(err)
		return WrapExitError(ExitCommandError, "failed to read project", err)
	}

	result := validateDocument(doc, formatter)
	if !result.Valid {
		if opts.Format == "json" {
			_ = formatter.Error("E_INVALID", fmt.Sprintf("%d issue(s)", len(result.Issues)), result)
		} else {
			_ = formatter.Success(result)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d issue(s) found", len(result.Issues)))
	}
	return formatter.Success(result)
}

// validateDocument collects every problem in a parsed document.
func validateDocument(doc *project.Document, formatter *OutputFormatter) ValidationResult {
	result := ValidationResult{Valid: true}
	add := func(issue ValidationIssue) {
		result.Valid = false
		result.Issues = append(result.Issues, issue)
	}

	result.Operations = len(doc.Flow.Operations)
	for i, rec := range doc.Flow.Operations {
		formatter.VerboseLog("Validating operation %d: %s", i, rec.Tag)
		if _, err := ops.Decode(rec.Tag, rec.Params); err != nil {
			add(ValidationIssue{Index: i, Tag: rec.Tag, Code: codeString(err), Message: err.Error()})
			continue
		}
		if rec.ID == "" {
			continue
		}
		id, err := ir.OperationID(i, rec.Tag, rec.Params)
		if err != nil {
			add(ValidationIssue{Index: i, Tag: rec.Tag, Code: string(errs.CodeInvalidArgument), Message: err.Error()})
			continue
		}
		if id != rec.ID {
			add(ValidationIssue{
				Index:   i,
				Tag:     rec.Tag,
				Code:    string(errs.CodeLoadError),
				Message: "recorded id does not match the operation",
			})
		}
	}
	return result
}

func codeString(err error) string {
	if code := errs.CodeOf(err); code != "" {
		return string(code)
	}
	return "E_INVALID"
}
