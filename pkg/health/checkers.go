package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
// Useful as a liveness check against leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be pinged.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// AnyCheck passes when at least one of checks passes. Used for a dependency
// reachable through several endpoints, like a broker list.
func AnyCheck(checks ...CheckFunc) CheckFunc {
	return func(ctx context.Context) error {
		var last error
		for _, c := range checks {
			if last = c(ctx); last == nil {
				return nil
			}
		}
		if last == nil {
			return errors.New("no endpoints configured")
		}
		return last
	}
}
