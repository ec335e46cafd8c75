package core

import (
	"sync"
)

// WorkQueue is a FIFO queue with de-duplication. Adding an item already
// queued is a no-op, which collapses redundant ticks for the same
// Application. Workers block on Wake until an item arrives.
type WorkQueue[T comparable] struct {
	mutex sync.Mutex
	set   map[T]struct{}
	items []T
	wake  chan struct{}
}

func NewWorkQueue[T comparable]() *WorkQueue[T] {
	return &WorkQueue[T]{
		set:  make(map[T]struct{}),
		wake: make(chan struct{}, 1),
	}
}

func (queue *WorkQueue[T]) Add(item T) {
	queue.mutex.Lock()

	if _, exists := queue.set[item]; exists {
		queue.mutex.Unlock()
		return
	}

	queue.set[item] = struct{}{}
	queue.items = append(queue.items, item)
	queue.mutex.Unlock()

	select {
	case queue.wake <- struct{}{}:
	default:
	}
}

func (queue *WorkQueue[T]) Get() (T, bool) {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	var zero T

	if len(queue.items) == 0 {
		return zero, false
	}

	item := queue.items[0]

	queue.items = queue.items[1:]
	delete(queue.set, item)

	if len(queue.items) > 0 {
		select {
		case queue.wake <- struct{}{}:
		default:
		}
	}

	return item, true
}

// Wake returns a channel that receives a signal when items are queued.
// The signal is coalesced; after waking, drain the queue with Get.
func (queue *WorkQueue[T]) Wake() <-chan struct{} {
	return queue.wake
}

func (queue *WorkQueue[T]) Len() int {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	return len(queue.items)
}
