package state

import "sync"

// mailbox is an unbounded FIFO of work for one goroutine. Posting never
// blocks, so callers on D-Bus dispatch goroutines cannot stall on a busy
// session.
type mailbox struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (b *mailbox) post(fn func()) {
	b.mu.Lock()
	b.queue = append(b.queue, fn)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *mailbox) take() []func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue
	b.queue = nil
	return q
}

// run executes posted work in order until stop is closed. With drain set,
// work posted before stop still runs.
func (b *mailbox) run(stop <-chan struct{}, drain bool) {
	for {
		select {
		case <-stop:
			if drain {
				for _, fn := range b.take() {
					fn()
				}
			}
			return
		case <-b.wake:
			for _, fn := range b.take() {
				fn()
			}
		}
	}
}
