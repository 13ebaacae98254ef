package flow

import (
	"errors"
	"fmt"

	"github.com/roach88/meshflow/internal/ops"
)

// ExecError is returned by ExecAll when an operation fails. Index is the
// failing operation's position in the log, which is also the applied count
// the flow stopped at.
type ExecError struct {
	Index int
	Tag   ops.Tag
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("operation %d (%s): %v", e.Index, e.Tag, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// AsExecError extracts an ExecError from err's chain.
func AsExecError(err error) (*ExecError, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
