// Package live provides a minimal observable value: a current value that
// can be read at any time, plus subscriptions that replay the current
// value and then receive every later update until their context ends.
package live

import (
	"context"
	"sync"
)

type Value[T any] struct {
	mu      sync.Mutex
	current T
	subs    map[int]chan T
	nextID  int
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    map[int]chan T{},
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set stores a new value and notifies every subscriber. A subscriber that
// is not keeping up loses intermediate values rather than blocking the
// setter; its next receive yields the latest value it has not consumed.
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = value
	for _, ch := range v.subs {
		select {
		case ch <- value:
		default:
			// Drop the stale buffered value and replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- value:
			default:
			}
		}
	}
}

// Subscribe returns a channel that first yields the current value and then
// every subsequent Set. The subscription is removed and the channel closed
// when ctx is cancelled.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = ch
	ch <- v.current
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
		close(ch)
	}()

	return ch
}
