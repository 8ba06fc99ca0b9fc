// Package attempt provides the first-success combinator shared by the
// sequential fallback chains in the engine: connection addresses, MX hosts
// and fallback DNS signals are all ordered candidate lists consumed the
// same way.
package attempt

import "context"

// First tries fn on each candidate in order and returns the first successful
// result. Candidates are tried strictly sequentially. On total failure the
// zero value and the last error are returned; context cancellation between
// attempts short-circuits with ctx.Err().
func First[C, T any](ctx context.Context, candidates []C, fn func(context.Context, C) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}
		v, err := fn(ctx, c)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrNoCandidates
	}
	return zero, lastErr
}

// ErrNoCandidates is returned by First when the candidate list is empty.
var ErrNoCandidates = errNoCandidates{}

type errNoCandidates struct{}

func (errNoCandidates) Error() string { return "attempt: no candidates" }
