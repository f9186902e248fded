package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck returns a liveness check that fails when the number of
// goroutines exceeds threshold, a cheap proxy for goroutine leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(ctx context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("too many goroutines: %d > %d", n, threshold)
		}
		return nil
	}
}
