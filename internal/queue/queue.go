package queue

import (
	"sync"

	genericlist "github.com/bahlo/generic-list-go"
)

// Queue is an unbounded FIFO queue safe for concurrent use. Pushes never
// block, regardless of how far behind the consumer is. Consumers either
// poll with Pop/PopAll or block on the Wait channel.
type Queue[T any] struct {
	mtx  sync.Mutex
	l    genericlist.List[T]
	wait chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{wait: make(chan struct{}, 1)}
}

// Push appends v to the back of the queue and wakes up a waiting consumer.
func (q *Queue[T]) Push(v T) {
	q.mtx.Lock()
	q.l.PushBack(v)
	q.mtx.Unlock()

	select {
	case q.wait <- struct{}{}:
	default:
	}
}

// Pop removes and returns the item at the front of the queue. ok is false
// when the queue is empty.
func (q *Queue[T]) Pop() (v T, ok bool) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	front := q.l.Front()
	if front == nil {
		return v, false
	}
	return q.l.Remove(front), true
}

// PopAll removes and returns every queued item in FIFO order. It returns
// nil when the queue is empty.
func (q *Queue[T]) PopAll() []T {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	n := q.l.Len()
	if n == 0 {
		return nil
	}
	res := make([]T, 0, n)
	for e := q.l.Front(); e != nil; e = q.l.Front() {
		res = append(res, q.l.Remove(e))
	}
	return res
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return q.l.Len()
}

// Wait returns a channel that receives after a Push. A single receive may
// cover multiple pushes, so consumers must drain the queue after waking
// up and must not assume one receive per item.
func (q *Queue[T]) Wait() <-chan struct{} {
	return q.wait
}
