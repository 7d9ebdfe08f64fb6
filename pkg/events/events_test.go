package events

import (
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestPublishAndSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)
	assert.Equal(t, 1, b.SubscriberCount())

	b.Handle(&Event{
		Kind:   KindNodeStarted,
		NodeID: types.NodeID{Host: "h1", Port: 8041},
	})

	select {
	case e := <-sub:
		assert.Equal(t, KindNodeStarted, e.Kind)
		assert.Equal(t, "h1:8041", e.NodeID.String())
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestProgramOrderPreserved(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	transitions := []Transition{TransitionRebooting, TransitionDecommission, TransitionShutdown}
	for _, tr := range transitions {
		b.Handle(&Event{Kind: KindNodeLifecycle, Transition: tr})
	}

	for _, expected := range transitions {
		select {
		case e := <-sub:
			assert.Equal(t, expected, e.Transition)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	// Never drained: its buffer fills and further events are skipped.
	_ = b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			b.Handle(&Event{Kind: KindNodeStatusUpdate})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestHandleAfterStopDoesNotBlock(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			b.Handle(&Event{Kind: KindNodeStatusUpdate})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle blocked after Stop")
	}
}
