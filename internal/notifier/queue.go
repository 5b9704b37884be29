package notifier

// Queue is a bounded FIFO of rendered messages. Both ends are non-blocking.
// Safe for many producers and one consumer.
type Queue struct {
	ch chan string
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{ch: make(chan string, size)}
}

// TryEnqueue appends msg, or returns false without touching the queue when
// it is full.
func (q *Queue) TryEnqueue(msg string) bool {
	select {
	case q.ch <- msg:
		return true
	default:
		return false
	}
}

// TryDequeue removes the head, or returns false when empty.
func (q *Queue) TryDequeue() (string, bool) {
	select {
	case msg := <-q.ch:
		return msg, true
	default:
		return "", false
	}
}

func (q *Queue) Len() int { return len(q.ch) }
func (q *Queue) Cap() int { return cap(q.ch) }

// discard empties the queue and returns how many messages were removed.
func (q *Queue) discard() int {
	n := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			return n
		}
		n++
	}
}
