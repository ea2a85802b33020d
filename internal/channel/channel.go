// Package channel provides the bounded queues between the transport, the
// dispatcher workers and the per-peer writers.
package channel

// Receiver provides read access to a queue.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a queue.
type Sender[T any] interface {
	// Send blocks until the value is accepted.
	Send(T)
	// TrySend never blocks and reports whether the value was accepted.
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Cap() int
	Close()
}

// Buffered is a bounded FIFO queue backed by a Go channel.
type Buffered[T any] struct {
	ch chan T
}

// NewBuffered creates a queue holding at most size values. A size below
// one is raised to one so that TrySend can ever succeed without a waiting
// receiver.
func NewBuffered[T any](size int) *Buffered[T] {
	if size < 1 {
		size = 1
	}
	return &Buffered[T]{ch: make(chan T, size)}
}

// Send queues v, blocking while the queue is full.
func (b *Buffered[T]) Send(v T) {
	b.ch <- v
}

// TrySend queues v unless the queue is full.
func (b *Buffered[T]) TrySend(v T) bool {
	select {
	case b.ch <- v:
		return true
	default:
		return false
	}
}

// Receive returns the receive side. It is closed by Close once drained.
func (b *Buffered[T]) Receive() <-chan T {
	return b.ch
}

// Len returns the number of queued values.
func (b *Buffered[T]) Len() int {
	return len(b.ch)
}

// Cap returns the queue bound.
func (b *Buffered[T]) Cap() int {
	return cap(b.ch)
}

// Close stops the queue. Values already queued can still be received.
// Sending after Close panics; callers serialize Close with their senders.
func (b *Buffered[T]) Close() {
	close(b.ch)
}
