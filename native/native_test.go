package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antmicro/libbtrace/errors"
)

func TestStatusErrMapping(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		check  func(t *testing.T, err error)
	}{
		{"ok maps to nil", StatusOK, func(t *testing.T, err error) {
			assert.NoError(t, err)
		}},
		{"again is transient never fatal", StatusAgain, func(t *testing.T, err error) {
			assert.True(t, errors.IsTransient(err))
			assert.False(t, errors.IsFatal(err))
		}},
		{"memory error is fatal never transient", StatusMemoryError, func(t *testing.T, err error) {
			assert.True(t, errors.IsFatal(err))
			assert.False(t, errors.IsTransient(err))
		}},
		{"end maps to end sentinel", StatusEnd, func(t *testing.T, err error) {
			assert.True(t, errors.IsEnd(err))
		}},
		{"overflow is invalid", StatusOverflowError, func(t *testing.T, err error) {
			assert.True(t, errors.IsInvalid(err))
		}},
		{"unknown object is distinct", StatusUnknownObject, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, errors.ErrUnknownObject)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.status.Err("test context"))
		})
	}
}

func TestAllocateAndRelease(t *testing.T) {
	eng := Open()

	destroyed := 0
	h := eng.Allocate("trace-class", func() { destroyed++ })
	assert.EqualValues(t, 1, eng.RefCount(h))

	eng.GetRef(h)
	assert.EqualValues(t, 2, eng.RefCount(h))

	eng.PutRef(h)
	assert.Equal(t, 0, destroyed)

	eng.PutRef(h)
	assert.Equal(t, 1, destroyed)
	assert.False(t, eng.IsLive(h))

	require.NoError(t, eng.Close())
}

func TestDestroyRunsExactlyOnce(t *testing.T) {
	eng := Open()

	count := 0
	h := eng.Allocate("stream", func() { count++ })
	for i := 0; i < 5; i++ {
		eng.GetRef(h)
	}
	for i := 0; i < 6; i++ {
		eng.PutRef(h)
	}

	assert.Equal(t, 1, count)
	assert.NoError(t, eng.Close())
}

func TestGetPutAccounting(t *testing.T) {
	eng := Open()

	h := eng.Allocate("packet", nil)
	eng.GetRef(h)
	eng.GetRef(h)
	eng.PutRef(h)
	eng.PutRef(h)
	eng.PutRef(h)

	assert.Equal(t, eng.Gets()+1, eng.Puts(), "allocation owns one reference; gets+1 must equal puts")
	assert.NoError(t, eng.Close())
}

func TestCascadingDestroy(t *testing.T) {
	eng := Open()

	// A parent that exclusively owns a child releases the child's
	// reference from its destroy hook.
	child := eng.Allocate("child", nil)
	parent := eng.Allocate("parent", func() { eng.PutRef(child) })

	eng.PutRef(parent)
	assert.False(t, eng.IsLive(parent))
	assert.False(t, eng.IsLive(child))
	assert.NoError(t, eng.Close())
}

func TestCloseReportsLeaks(t *testing.T) {
	eng := Open()

	h := eng.Allocate("event-class", nil)
	err := eng.Close()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "event-class")

	eng.PutRef(h)
	assert.NoError(t, eng.Close())
}

func TestZeroHandlePanics(t *testing.T) {
	eng := Open()
	assert.Panics(t, func() { eng.GetRef(0) })
	assert.Panics(t, func() { eng.PutRef(0) })
}

func TestDeadHandlePanics(t *testing.T) {
	eng := Open()
	h := eng.Allocate("msg", nil)
	eng.PutRef(h)
	assert.Panics(t, func() { eng.GetRef(h) })
}
