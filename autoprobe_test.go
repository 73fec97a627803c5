package autoprobe_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fwojciec/autoprobe"
	"github.com/stretchr/testify/assert"
)

func TestErrorf(t *testing.T) {
	t.Parallel()

	err := autoprobe.Errorf(autoprobe.ENOTFOUND, "pattern %q not found", "test")

	assert.Equal(t, autoprobe.ENOTFOUND, autoprobe.ErrorCode(err))
	assert.Equal(t, "pattern \"test\" not found", autoprobe.ErrorMessage(err))
}

func TestErrorCode_NilError(t *testing.T) {
	t.Parallel()

	assert.Empty(t, autoprobe.ErrorCode(nil))
}

func TestErrorMessage_NilError(t *testing.T) {
	t.Parallel()

	assert.Empty(t, autoprobe.ErrorMessage(nil))
}

func TestErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("loading: %w", autoprobe.Errorf(autoprobe.ECONFLICT, "busy"))

	assert.Equal(t, autoprobe.ECONFLICT, autoprobe.ErrorCode(err))
	assert.Equal(t, "busy", autoprobe.ErrorMessage(err))
}

func TestErrorCode_NonApplicationError(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")

	assert.Equal(t, autoprobe.EINTERNAL, autoprobe.ErrorCode(err))
	assert.Equal(t, "Internal error.", autoprobe.ErrorMessage(err))
}

func TestErrorCode_StateTransitionError(t *testing.T) {
	t.Parallel()

	err := &autoprobe.StateTransitionError{TaskID: "t1", From: autoprobe.TaskPending, Event: autoprobe.EventComplete}

	assert.Equal(t, autoprobe.ECONFLICT, autoprobe.ErrorCode(err))
	assert.Equal(t, `task "t1": cannot complete from pending`, autoprobe.ErrorMessage(err))
}
