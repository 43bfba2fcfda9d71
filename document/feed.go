package document

import (
	"sync"
	"time"
)

// ChangeKind distinguishes subtree mutations from navigation
type ChangeKind int

const (
	ContentChanged ChangeKind = iota
	LocationChanged
)

func (k ChangeKind) String() string {
	if k == LocationChanged {
		return "location"
	}
	return "content"
}

// Change is one notification from a ChangeFeed
type Change struct {
	Kind      ChangeKind
	Location  string
	Mutations int
}

// ChangeFeed notifies subscribers when the document or its location
// changes. Notifications are raw; consumers debounce them.
type ChangeFeed interface {
	Subscribe(fn func(Change)) (unsubscribe func())
}

// Broadcaster is an in-process ChangeFeed
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]func(Change)
	nextID int
}

// NewBroadcaster creates an empty feed
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func(Change))}
}

// Subscribe registers fn until the returned function is called
func (b *Broadcaster) Subscribe(fn func(Change)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers change to every subscriber
func (b *Broadcaster) Publish(change Change) {
	b.mu.RLock()
	subs := make([]func(Change), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(change)
	}
}

// Debouncer collapses a burst of triggers into one call made delay after
// the last trigger
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger (re)arms the debouncer; only the fn of the last trigger in a
// burst runs
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels a pending call and ignores later triggers
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
