// Package resource models asynchronously produced values as closed state sets.
//
// A Resource is an immutable value: producers build a new one for every
// transition and consumers only read it. The optional retry action re-triggers
// the producer; guarding against retries while a load is already running is the
// producer's job, not this package's.
package resource

import (
	"errors"
	"fmt"
)

// Status is the discriminant of a Resource.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusLoaded
	StatusError
	// StatusExhausted is terminal for a "more" cursor: no further pages exist.
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusError:
		return "error"
	case StatusExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Resource is a single asynchronous value. Loading and Error states may carry
// the last known value so consumers can keep showing it.
type Resource[T any] struct {
	status   Status
	value    T
	hasValue bool
	err      error
	retry    func()
}

// Idle returns a resource nobody has asked for yet.
func Idle[T any]() Resource[T] {
	return Resource[T]{status: StatusIdle}
}

// Loading returns a resource whose value is being produced.
func Loading[T any]() Resource[T] {
	return Resource[T]{status: StatusLoading}
}

// Loaded returns a resource holding v.
func Loaded[T any](v T) Resource[T] {
	return Resource[T]{status: StatusLoaded, value: v, hasValue: true}
}

// Failed returns a resource whose production failed with err.
func Failed[T any](err error) Resource[T] {
	if err == nil {
		err = errUnknown
	}
	return Resource[T]{status: StatusError, err: err}
}

// Exhausted returns the terminal "no more pages" resource.
func Exhausted[T any]() Resource[T] {
	return Resource[T]{status: StatusExhausted}
}

var errUnknown = errors.New("unknown error")

// WithValue returns a copy carrying v as its (possibly stale) value.
// Exhausted resources never carry a value.
func (r Resource[T]) WithValue(v T) Resource[T] {
	if r.status == StatusExhausted {
		return r
	}
	r.value = v
	r.hasValue = true
	return r
}

// WithRetry returns a copy carrying fn as its retry action. An exhausted
// resource has nothing left to retry, so fn is dropped.
func (r Resource[T]) WithRetry(fn func()) Resource[T] {
	if r.status == StatusExhausted {
		return r
	}
	r.retry = fn
	return r
}

func (r Resource[T]) Status() Status { return r.status }

// Value returns the carried value and whether one is present.
func (r Resource[T]) Value() (T, bool) { return r.value, r.hasValue }

// Err returns the failure cause for StatusError and nil otherwise.
func (r Resource[T]) Err() error { return r.err }

// Retry returns the retry action, or nil when no meaningful retry exists.
func (r Resource[T]) Retry() func() { return r.retry }

func (r Resource[T]) IsLoading() bool   { return r.status == StatusLoading }
func (r Resource[T]) IsError() bool     { return r.status == StatusError }
func (r Resource[T]) IsExhausted() bool { return r.status == StatusExhausted }

func (r Resource[T]) String() string {
	if r.status == StatusError {
		return fmt.Sprintf("%s(%v)", r.status, r.err)
	}
	return r.status.String()
}
