package util

import "sync"

// Memoizer is a simple encapsulation of a lazily evaluated, evaluated-only-once function.
type Memoizer[T any] struct {
	once      sync.Once
	computeFn func() T
	result    T
}

// NewMemoizer creates a new uninitialized Memoizer.
func NewMemoizer[T any](computeFn func() T) *Memoizer[T] {
	return &Memoizer[T]{computeFn: computeFn}
}

// Get returns the result of the computeFn, calling it only if it has not already been called.
func (m *Memoizer[T]) Get() T {
	m.once.Do(func() {
		m.result = m.computeFn()
	})
	return m.result
}
