package transport

import (
	"log"
	"sync"
)

type (
	// bus fans events out to subscribers in registration order. Delivery is
	// synchronous on the publishing goroutine and unqueued; a subscriber that
	// panics is logged and skipped so it cannot starve the others.
	bus struct {
		mu     sync.Mutex
		nextID int
		subs   []subscriber
		logger *log.Logger
	}

	subscriber struct {
		id int
		fn func(Event)
	}
)

// subscribe registers fn and returns a function that removes it again. The
// returned function is safe to call more than once.
func (b *bus) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) publish(e Event) {
	b.mu.Lock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.Unlock()
	for _, s := range subs {
		b.deliver(s.fn, e)
	}
}

// deliver calls one subscriber, catching a panic so that one broken callback
// cannot block delivery to the rest.
func (b *bus) deliver(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("transport: subscriber panicked: %v", r)
		}
	}()
	fn(e)
}
