package api

import (
	"context"
	"fmt"
	"sync"
)

// Unit is the value carried by a Maybe that only signals completion.
type Unit struct{}

// Maybe is the outcome of an operation that either settled immediately or
// will settle later.
//
// A ready Maybe holds its value (or error) inline. A deferred Maybe is backed
// by a one-shot future. Combinators (Then, AndThen) run their continuation
// inline for ready values and only after settlement for deferred ones, so a
// chain made of ready values never leaves the calling goroutine.
type Maybe[T any] struct {
	fut *future[T]
	val T
	err error
}

type future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

func (f *future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
	})
}

// Ready returns a settled, successful Maybe.
func Ready[T any](v T) Maybe[T] {
	return Maybe[T]{val: v}
}

// Failed returns a settled, failed Maybe.
func Failed[T any](err error) Maybe[T] {
	return Maybe[T]{err: err}
}

// Done returns a settled Maybe[Unit].
func Done() Maybe[Unit] {
	return Maybe[Unit]{}
}

// From lifts a (value, error) pair into a settled Maybe.
func From[T any](v T, err error) Maybe[T] {
	if err != nil {
		return Failed[T](err)
	}
	return Ready(v)
}

// Resolver settles a deferred Maybe created by Deferred. Only the first call
// has an effect.
type Resolver[T any] func(v T, err error)

// Deferred returns an unsettled Maybe and the function that settles it.
func Deferred[T any]() (Maybe[T], Resolver[T]) {
	f := newFuture[T]()
	return Maybe[T]{fut: f}, f.resolve
}

// Go runs fn on a new goroutine and returns a deferred Maybe for its result.
// A panic inside fn settles the Maybe with an error.
func Go[T any](fn func() (T, error)) Maybe[T] {
	f := newFuture[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.resolve(zero, fmt.Errorf("panic in deferred operation: %v", r))
			}
		}()
		v, err := fn()
		f.resolve(v, err)
	}()
	return Maybe[T]{fut: f}
}

// IsDeferred reports whether m was produced by deferred work.
func (m Maybe[T]) IsDeferred() bool {
	return m.fut != nil
}

// Settled reports whether the value is available without blocking.
func (m Maybe[T]) Settled() bool {
	if m.fut == nil {
		return true
	}
	select {
	case <-m.fut.done:
		return true
	default:
		return false
	}
}

// Await blocks until m settles or ctx is done.
func (m Maybe[T]) Await(ctx context.Context) (T, error) {
	if m.fut == nil {
		return m.val, m.err
	}
	select {
	case <-m.fut.done:
		return m.fut.val, m.fut.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get returns the value of a settled Maybe. It blocks on deferred values.
func (m Maybe[T]) Get() (T, error) {
	if m.fut == nil {
		return m.val, m.err
	}
	<-m.fut.done
	return m.fut.val, m.fut.err
}

// Then chains fn after m settles, passing both the value and the error.
// It is the only place the ready/deferred split is handled; every other
// combinator is written in terms of it.
func Then[T, U any](m Maybe[T], fn func(T, error) Maybe[U]) Maybe[U] {
	if m.fut == nil {
		return fn(m.val, m.err)
	}
	return Go(func() (U, error) {
		v, err := m.Get()
		return fn(v, err).Get()
	})
}

// AndThen chains fn after a successful m; failures pass through untouched.
func AndThen[T, U any](m Maybe[T], fn func(T) Maybe[U]) Maybe[U] {
	return Then(m, func(v T, err error) Maybe[U] {
		if err != nil {
			return Failed[U](err)
		}
		return fn(v)
	})
}

// Map transforms the successful value of m.
func Map[T, U any](m Maybe[T], fn func(T) U) Maybe[U] {
	return AndThen(m, func(v T) Maybe[U] {
		return Ready(fn(v))
	})
}

// Discard drops the value of m, keeping only completion and error.
func Discard[T any](m Maybe[T]) Maybe[Unit] {
	return Map(m, func(T) Unit { return Unit{} })
}

// Sequence runs fns one after another, stopping at the first failure.
func Sequence(fns ...func() Maybe[Unit]) Maybe[Unit] {
	var step func(i int) Maybe[Unit]
	step = func(i int) Maybe[Unit] {
		if i >= len(fns) {
			return Done()
		}
		return AndThen(fns[i](), func(Unit) Maybe[Unit] {
			return step(i + 1)
		})
	}
	return step(0)
}
