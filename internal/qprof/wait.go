package qprof

import (
	"context"
	"errors"
	"time"
)

var errWaitTimeout = errors.New("condition not met before timeout")

// waitFor polls cond every interval until it reports true, the timeout
// elapses, or the context is cancelled. Fixed sleeps are reserved for
// genuinely unobservable settling; everything observable goes through here.
func waitFor(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return errWaitTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
