package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
	"golang.org/x/sync/errgroup"
)

// ErrExec executes the functions concurrently and returns the first error.
func ErrExec(functions ...func() error) error {
	group, ctx := errgroup.WithContext(context.Background())

	for _, one := range functions {
		one := one
		group.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return one()
			}
		})
	}

	return group.Wait()
}

// ErrExecSequential executes the functions one by one, accumulating every
// error instead of stopping at the first.
func ErrExecSequential(functions ...func() error) error {
	var multErr error
	for _, one := range functions {
		if err := one(); err != nil {
			multErr = multierror.Append(multErr, err)
		}
	}
	return multErr
}

// ErrExecFormat wraps the error returned from a function with the given format.
func ErrExecFormat(format string, function func() error) func() error {
	return func() error {
		if err := function(); err != nil {
			return fmt.Errorf(format, err)
		}
		return nil
	}
}

// RetryExec retries a function up to retries additional attempts with a fixed
// delay between them.
func RetryExec(function func() error, retries int, delay time.Duration) error {
	var err error
	for i := 0; i <= retries; i++ {
		err = function()
		if err == nil {
			return nil
		}
		logger.Warnf("attempt %d failed: %s", i+1, err)
		time.Sleep(delay)
	}
	return fmt.Errorf("failed after %d retries: %w", retries, err)
}
