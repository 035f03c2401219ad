// Package watch fans out the latest value of a piece of state to any number
// of subscribers. Subscribers that fall behind observe only the newest value;
// publishers never block on them.
package watch

import "sync"

// Value holds the current T and its subscribers.
type Value[T any] struct {
	mu     sync.Mutex
	value  T
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

// New returns a Value initialised to initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		value: initial,
		subs:  make(map[uint64]chan T),
	}
}

// Load returns the current value.
func (v *Value[T]) Load() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Store replaces the current value and publishes it.
func (v *Value[T]) Store(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = next
	v.publishLocked()
}

// Update applies fn to the current value atomically, publishes and returns
// the result.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = fn(v.value)
	v.publishLocked()
	return v.value
}

func (v *Value[T]) publishLocked() {
	if v.closed {
		return
	}
	for _, ch := range v.subs {
		// Replace whatever the subscriber has not read yet.
		select {
		case <-ch:
		default:
		}
		ch <- v.value
	}
}

// Subscribe returns a channel primed with the current value and a cancel
// function. The channel is closed by cancel or by Close.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- v.value

	id := v.nextID
	v.nextID++
	v.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if sub, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(sub)
			}
		})
	}
}

// Close closes every subscriber channel. Later stores still update the value
// but publish nothing.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}
