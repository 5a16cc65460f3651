package health

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// errNotReady is reported by [Ready] checkers that are still starting.
var errNotReady = errors.New("not ready")

// Ready returns a checker passing once ready reports true, e.g. after the
// first index build.
func Ready(name string, ready func() bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !ready() {
			return errNotReady
		}
		return nil
	}}
}

// Ping returns a checker delegating to a connectivity probe such as a
// database pool's Ping.
func Ping(name string, ping func(ctx context.Context) error) Checker {
	return Checker{Name: name, Check: ping}
}

// WritableDir returns a checker passing when dir exists (or can be created)
// and accepts new files.
func WritableDir(name, dir string) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".readyz-*")
		if err != nil {
			return fmt.Errorf("not writable: %w", err)
		}
		f.Close()
		return os.Remove(f.Name())
	}}
}
