// Copyright (c) 2026 Shuhai. All rights reserved.

package task

import (
	"log/slog"
	"sync"
)

// # Progress Bus

// Subscriber receives progress snapshots for one task.
type Subscriber func(Snapshot)

// Bus is a process-local fan-out of task progress events keyed by task ID.
//
// Publish iterates a copy of the subscriber set, so subscribers may
// unsubscribe (even themselves) from inside the callback. A panicking
// subscriber is logged and dropped without affecting the others.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]Subscriber
	nextID int
	logger *slog.Logger
}

// NewBus constructs an empty progress [Bus].
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]map[int]Subscriber),
		logger: logger,
	}
}

/*
Subscribe registers a callback for one task's events.

Returns:
  - int: A token for [Bus.Unsubscribe]
*/
func (bus *Bus) Subscribe(taskID string, subscriber Subscriber) int {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.nextID++
	token := bus.nextID

	if bus.subs[taskID] == nil {
		bus.subs[taskID] = make(map[int]Subscriber)
	}
	bus.subs[taskID][token] = subscriber

	return token
}

// Unsubscribe removes one subscriber by its token. Unknown tokens are a
// no-op.
func (bus *Bus) Unsubscribe(taskID string, token int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if set, ok := bus.subs[taskID]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(bus.subs, taskID)
		}
	}
}

// UnsubscribeAll removes every subscriber of a task. Called after the
// terminal event so finished tasks do not leak subscriber sets.
func (bus *Bus) UnsubscribeAll(taskID string) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.subs, taskID)
}

/*
Publish delivers a snapshot to every subscriber of the task.

Description: The subscriber set is copied under the read lock and invoked
outside it, so callbacks may block briefly or mutate subscriptions without
deadlocking the bus. Delivery is best-effort and in publish order per task.
*/
func (bus *Bus) Publish(taskID string, snapshot Snapshot) {
	bus.mu.RLock()
	subscribers := make([]Subscriber, 0, len(bus.subs[taskID]))
	for _, subscriber := range bus.subs[taskID] {
		subscribers = append(subscribers, subscriber)
	}
	bus.mu.RUnlock()

	for _, subscriber := range subscribers {
		bus.deliver(taskID, subscriber, snapshot)
	}
}

// deliver invokes one subscriber with panic isolation.
func (bus *Bus) deliver(taskID string, subscriber Subscriber, snapshot Snapshot) {
	defer func() {
		if recovered := recover(); recovered != nil {
			bus.logger.Error("progress_subscriber_panic",
				slog.String("task_id", taskID),
				slog.Any("panic", recovered),
			)
		}
	}()

	subscriber(snapshot)
}
