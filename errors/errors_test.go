package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		name     string
		class    ErrorClass
		expected string
	}{
		{"transient", ErrorTransient, "transient"},
		{"invalid", ErrorInvalid, "invalid"},
		{"fatal", ErrorFatal, "fatal"},
		{"unknown", ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.class.String())
		})
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		invalid   bool
		fatal     bool
	}{
		{"try again is transient", ErrTryAgain, true, false, false},
		{"memory error is fatal", ErrMemory, false, false, true},
		{"overflow is invalid", ErrOverflow, false, true, false},
		{"invalid argument is invalid", ErrInvalidArgument, false, true, false},
		{"no common version is fatal", ErrNoCommonVersion, false, false, true},
		{"unused inputs is fatal", ErrUnusedInputs, false, false, true},
		{"wrapped try again stays transient", fmt.Errorf("op: %w", ErrTryAgain), true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.invalid, IsInvalid(tt.err))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestWrapPreservesSentinel(t *testing.T) {
	err := WrapTransient(ErrTryAgain, "Iterator", "Next", "batch fetch")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTryAgain))
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "Iterator.Next")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassifiedOverridesSentinel(t *testing.T) {
	// An explicit classification wins over the wrapped sentinel's
	// default class.
	err := WrapFatal(ErrTryAgain, "Graph", "Run", "consume")
	assert.True(t, IsFatal(err))
	assert.False(t, IsTransient(err))
}

func TestInvalidf(t *testing.T) {
	err := Invalidf("field width %d out of range", 65)
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Contains(t, err.Error(), "65")
}

func TestIsEnd(t *testing.T) {
	assert.True(t, IsEnd(ErrEnd))
	assert.True(t, IsEnd(fmt.Errorf("iterate: %w", ErrEnd)))
	assert.False(t, IsEnd(ErrTryAgain))
	assert.False(t, IsEnd(nil))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrMemory))
	assert.Equal(t, ErrorInvalid, Classify(ErrOverflow))
	assert.Equal(t, ErrorTransient, Classify(errors.New("anything else")))
}
