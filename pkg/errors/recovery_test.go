package errors

import (
	stderrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := func() (err error) {
		defer func() {
			err = RecoverPanic(recover())
		}()
		panic("kaboom")
	}()

	var pe *PanicError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, "panic: kaboom", err.Error())
	assert.True(t, pe.IsFatal())
	assert.NotEmpty(t, pe.Stack)
}

func TestRecoverPanic_WrapsErrorValues(t *testing.T) {
	err := RecoverPanic(io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
