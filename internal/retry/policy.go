// Package retry provides the retry and backoff policies that bound every
// network-facing operation in the client.
//
// Policies are stateful: a policy instance accumulates error counts or tracks
// a wall-clock deadline across the attempts of one logical operation. Callers
// therefore hold a factory and construct a fresh instance per operation, never
// per attempt and never shared between operations.
package retry

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsTransientCode reports whether a gRPC status code is safe to retry.
func IsTransientCode(c codes.Code) bool {
	switch c {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err carries a retryable gRPC status code.
// Errors that carry no gRPC status (parse errors, misuse errors) are never
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	return IsTransientCode(s.Code())
}

// Policy decides whether one more attempt is allowed after a failure.
// Implementations are stateful and not safe for concurrent use.
type Policy interface {
	// ShouldRetry consumes one failure and reports whether the operation
	// may be attempted again.
	ShouldRetry(err error) bool
}

// PolicyFactory constructs a fresh, independently-stateful policy instance
// for one logical operation.
type PolicyFactory func() Policy

type errorCountPolicy struct {
	remaining int
}

// LimitedErrorCount returns a factory for policies that allow up to maxErrors
// transient failures before giving up.
func LimitedErrorCount(maxErrors int) PolicyFactory {
	return func() Policy {
		return &errorCountPolicy{remaining: maxErrors}
	}
}

func (p *errorCountPolicy) ShouldRetry(err error) bool {
	if !IsTransient(err) {
		return false
	}
	if p.remaining <= 0 {
		return false
	}
	p.remaining--
	return true
}

type timeLimitPolicy struct {
	deadline time.Time
	now      func() time.Time
}

// LimitedTime returns a factory for policies that allow retrying transient
// failures until maxElapsed has passed since the policy was constructed.
func LimitedTime(maxElapsed time.Duration) PolicyFactory {
	return LimitedTimeWithClock(maxElapsed, time.Now)
}

// LimitedTimeWithClock is LimitedTime with an injectable clock for tests.
func LimitedTimeWithClock(maxElapsed time.Duration, now func() time.Time) PolicyFactory {
	return func() Policy {
		return &timeLimitPolicy{deadline: now().Add(maxElapsed), now: now}
	}
}

func (p *timeLimitPolicy) ShouldRetry(err error) bool {
	if !IsTransient(err) {
		return false
	}
	return p.now().Before(p.deadline)
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
