package cdp

import "sync"

// notificationQueue is an unbounded FIFO between the read loop and dispatch.
//
// push never blocks, so the read loop keeps resolving call responses while a
// slow handler runs.
type notificationQueue struct {
	mu     sync.Mutex
	items  []Notification
	closed bool
	ready  chan struct{}
}

func newNotificationQueue() *notificationQueue {
	return &notificationQueue{ready: make(chan struct{}, 1)}
}

func (q *notificationQueue) push(notification Notification) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, notification)
	q.mu.Unlock()

	q.signal()
}

// pop blocks until a notification is queued. It reports false once the queue
// is closed and drained.
func (q *notificationQueue) pop() (Notification, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			notification := q.items[0]
			q.items[0] = Notification{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return notification, true
		}
		if q.closed {
			q.mu.Unlock()
			return Notification{}, false
		}
		q.mu.Unlock()

		<-q.ready
	}
}

func (q *notificationQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *notificationQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
