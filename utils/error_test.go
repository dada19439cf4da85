package utils

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrExec(t *testing.T) {
	var ran atomic.Int32
	require.NoError(t, ErrExec(
		func() error { ran.Add(1); return nil },
		func() error { ran.Add(1); return nil },
	))
	assert.Equal(t, int32(2), ran.Load())

	boom := errors.New("probe failed")
	err := ErrExec(
		func() error { return nil },
		func() error { return boom },
	)
	assert.ErrorIs(t, err, boom)
}

func TestErrExecSequentialAccumulates(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	var ran int
	err := ErrExecSequential(
		func() error { ran++; return first },
		func() error { ran++; return nil },
		func() error { ran++; return second },
	)
	assert.Equal(t, 3, ran, "a failure must not stop the remaining functions")
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestErrExecFormat(t *testing.T) {
	boom := errors.New("connection reset")
	wrapped := ErrExecFormat("failed to close destination connection: %s", func() error { return boom })
	err := wrapped()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to close destination connection")
	assert.Contains(t, err.Error(), "connection reset")

	require.NoError(t, ErrExecFormat("unused: %s", func() error { return nil })())
}

func TestRetryExec(t *testing.T) {
	attempts := 0
	err := RetryExec(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("broker not ready")
		}
		return nil
	}, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = RetryExec(func() error {
		attempts++
		return errors.New("broker not ready")
	}, 2, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "retries are additional attempts")
}
