// Package retry wraps fallible remote-store operations with bounded
// exponential-backoff retry. Errors are classified as retryable by matching
// configured markers against the error text or the store error code;
// everything else fails immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Policy controls retry behaviour for one operation.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// RetryableMarkers match by substring of the error message or by exact
	// error code (see Coder).
	RetryableMarkers []string
}

// DefaultPolicy mirrors the store client defaults: 3 attempts, 1s initial
// delay, 10s cap, x2 backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		RetryableMarkers: []string{
			"connection refused",
			"connection reset",
			"timeout",
			"no such host",
			"network is unreachable",
			"broken pipe",
			"EOF",
			"500",
			"502",
			"503",
		},
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.BackoffMultiplier <= 1 {
		p.BackoffMultiplier = 2
	}
	return p
}

// Coder exposes a machine-readable error code. Store errors implement it so
// markers like "503" can match the code exactly rather than the message.
type Coder interface {
	ErrorCode() string
}

// OpError is the terminal failure surfaced after retries are exhausted or a
// non-retryable error occurs. It carries the attempt count and the original
// error.
type OpError struct {
	Op       string
	Code     string
	Attempts int
	Err      error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func (e *OpError) ErrorCode() string { return e.Code }

// Do executes op under the policy. Non-retryable errors are wrapped and
// returned immediately; retryable ones are reattempted with exponential
// backoff until the attempt budget runs out.
func Do[T any](ctx context.Context, name string, p Policy, op func() (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	delay := p.InitialDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			if attempt > 1 {
				logrus.WithFields(logrus.Fields{"op": name, "attempt": attempt}).
					Info("operation succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		if !Retryable(err, p.RetryableMarkers) || attempt == p.MaxAttempts {
			logrus.WithFields(logrus.Fields{"op": name, "attempt": attempt, "max": p.MaxAttempts}).
				WithError(err).Error("operation failed")
			return zero, &OpError{Op: name, Code: codeOf(err), Attempts: attempt, Err: err}
		}

		logrus.WithFields(logrus.Fields{"op": name, "attempt": attempt, "max": p.MaxAttempts, "delay": delay}).
			WithError(err).Warn("operation failed, retrying")

		select {
		case <-ctx.Done():
			return zero, &OpError{Op: name, Code: "CANCELLED", Attempts: attempt, Err: ctx.Err()}
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * p.BackoffMultiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	// Unreachable: the loop always returns from inside.
	return zero, &OpError{Op: name, Code: codeOf(lastErr), Attempts: p.MaxAttempts, Err: lastErr}
}

// Retryable reports whether err matches any marker by message substring or
// exact error code. Context cancellation is never retryable.
func Retryable(err error, markers []string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := err.Error()
	code := codeOf(err)
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		if strings.Contains(msg, marker) {
			return true
		}
		if code != "" && code == marker {
			return true
		}
	}
	return false
}

func codeOf(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return "UNKNOWN"
}
