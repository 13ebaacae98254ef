package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{"not found", NotFound("grid2", "g1"), `NOT_FOUND [grid2 "g1"]: no such object`},
		{"collision with op", NameCollision("grid2", "g1").WithOp("rename"), `NAME_COLLISION rename [grid2 "g1"]: name already in use`},
		{"invalid argument", InvalidArgument("nx must be positive, got %d", 0), "INVALID_ARGUMENT: nx must be positive, got 0"},
		{"kernel", KernelFailure(errors.New("degenerate")), "KERNEL_FAILURE: degenerate"},
		{"state sentinel", InvalidStateErr(ErrNothingToUndo), "INVALID_STATE: nothing to undo"},
		{"load wrap", LoadErrorWrap(errors.New("eof"), "read %s", "p.hmp"), "LOAD_ERROR: read p.hmp: eof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("apply op 3: %w", NotFound("contour2", "c1"))

	assert.True(t, Is(err, CodeNotFound))
	assert.False(t, Is(err, CodeNameCollision))
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestSentinelsReachable(t *testing.T) {
	err := fmt.Errorf("undo: %w", InvalidStateErr(ErrNothingToUndo))

	assert.ErrorIs(t, err, ErrNothingToUndo)
	assert.True(t, Is(err, CodeInvalidState))
}

func TestWithOpKeepsExisting(t *testing.T) {
	e := InvalidArgument("bad").WithOp("first")
	assert.Equal(t, "first", e.WithOp("second").Op)
}
