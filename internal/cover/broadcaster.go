package cover

import "sync"

// Listener receives published snapshots.
type Listener func(Snapshot)

// Broadcaster is a Publisher that fans snapshots out to listeners. Listeners
// run synchronously on the publishing engine's goroutine and must return
// quickly.
type Broadcaster struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// NewBroadcaster creates a broadcaster without listeners.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[int]Listener)}
}

// Subscribe adds a listener and returns a function that removes it.
func (b *Broadcaster) Subscribe(fn Listener) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Publish implements Publisher.
func (b *Broadcaster) Publish(s Snapshot) {
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(s)
	}
}
