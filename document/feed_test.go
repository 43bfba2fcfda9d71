package document

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcasterSubscribeAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	var got []Change
	unsubscribe := b.Subscribe(func(c Change) { got = append(got, c) })

	b.Publish(Change{Kind: LocationChanged, Location: "a"})
	unsubscribe()
	unsubscribe()
	b.Publish(Change{Kind: ContentChanged, Location: "b"})

	assert.Len(t, got, 1)
	assert.Equal(t, "location", got[0].Kind.String())
}

func TestDebouncerCollapsesBursts(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int32

	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(2 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	var calls atomic.Int32

	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}
