// Copyright (c) 2026 Shuhai. All rights reserved.

package task

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := newTestBus()

	var seen []int
	bus.Subscribe("t1", func(snapshot Snapshot) {
		seen = append(seen, snapshot.Downloaded)
	})

	for i := 1; i <= 5; i++ {
		bus.Publish("t1", Snapshot{Event: EventProgress, TaskID: "t1", Downloaded: i})
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
}

func TestBusIsolatesTasks(t *testing.T) {
	bus := newTestBus()

	var left, right int
	bus.Subscribe("t1", func(Snapshot) { left++ })
	bus.Subscribe("t2", func(Snapshot) { right++ })

	bus.Publish("t1", Snapshot{Event: EventProgress})

	assert.Equal(t, 1, left)
	assert.Equal(t, 0, right)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var count int
	token := bus.Subscribe("t1", func(Snapshot) { count++ })

	bus.Publish("t1", Snapshot{Event: EventProgress})
	bus.Unsubscribe("t1", token)
	bus.Publish("t1", Snapshot{Event: EventProgress})

	assert.Equal(t, 1, count)

	// Unknown tokens and tasks are a no-op.
	bus.Unsubscribe("t1", token)
	bus.Unsubscribe("missing", 99)
}

func TestBusSubscriberMayUnsubscribeItself(t *testing.T) {
	bus := newTestBus()

	var count int
	var token int
	token = bus.Subscribe("t1", func(Snapshot) {
		count++
		bus.Unsubscribe("t1", token)
	})

	bus.Publish("t1", Snapshot{Event: EventProgress})
	bus.Publish("t1", Snapshot{Event: EventProgress})

	assert.Equal(t, 1, count)
}

func TestBusPanickingSubscriberDoesNotAffectOthers(t *testing.T) {
	bus := newTestBus()

	var healthy int
	bus.Subscribe("t1", func(Snapshot) { panic("boom") })
	bus.Subscribe("t1", func(Snapshot) { healthy++ })

	require.NotPanics(t, func() {
		bus.Publish("t1", Snapshot{Event: EventProgress})
	})

	assert.Equal(t, 1, healthy)
}

func TestBusUnsubscribeAll(t *testing.T) {
	bus := newTestBus()

	var count int
	bus.Subscribe("t1", func(Snapshot) { count++ })
	bus.Subscribe("t1", func(Snapshot) { count++ })

	bus.UnsubscribeAll("t1")
	bus.Publish("t1", Snapshot{Event: EventCompleted})

	assert.Equal(t, 0, count)
}
