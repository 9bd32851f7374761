// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventQueueSize      = 64
	AsyncQueueSize      = 1000
	AsyncWorkerPoolSize = 2
)

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

type asyncEvent struct {
	eventType EventType
	event     Event
}

// EventBus fans events out to in-process subscribers. Delivery never blocks
// the publisher: an event for a subscriber with a full queue is dropped and
// counted.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]*subscriber
	metrics     *eventMetrics
	logger      *slog.Logger
	lastSubId   EventSubscriberId
	mu          sync.RWMutex

	asyncQueue chan asyncEvent
	asyncWg    sync.WaitGroup
	handlerWg  sync.WaitGroup
	stopCh     chan struct{}
	stopped    bool
	stopMu     sync.RWMutex
	stopOnce   sync.Once
}

// NewEventBus creates an EventBus and starts its async workers. Metrics are
// registered when promRegistry is not nil.
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]*subscriber),
		logger:      logger.With("component", "event"),
		asyncQueue:  make(chan asyncEvent, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		e.metrics = newEventMetrics(promRegistry)
	}
	for range AsyncWorkerPoolSize {
		e.asyncWg.Add(1)
		go e.asyncWorker()
	}
	return e
}

func (e *EventBus) asyncWorker() {
	defer e.asyncWg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case ae := <-e.asyncQueue:
			e.Publish(ae.eventType, ae.event)
		}
	}
}

type subscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func newSubscriber(buffer int) *subscriber {
	return &subscriber{ch: make(chan Event, buffer)}
}

// deliver reports false when the event was dropped on a full queue
func (s *subscriber) deliver(evt Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Subscribe returns a channel receiving events of eventType. The channel is
// closed on Unsubscribe or Stop. A stopped bus returns id 0 and a closed
// channel.
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		sub := newSubscriber(0)
		sub.close()
		return 0, sub.ch
	}
	return e.addSubscriber(eventType)
}

// SubscribeFunc calls handlerFunc for each event of eventType on a
// dedicated goroutine. A panicking handler is logged and the subscription
// keeps running.
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return 0
	}
	subId, evtCh := e.addSubscriber(eventType)
	e.handlerWg.Add(1)
	go func() {
		defer e.handlerWg.Done()
		for evt := range evtCh {
			e.handle(eventType, handlerFunc, evt)
		}
	}()
	return subId
}

func (e *EventBus) addSubscriber(eventType EventType) (EventSubscriberId, <-chan Event) {
	sub := newSubscriber(EventQueueSize)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSubId++
	subId := e.lastSubId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]*subscriber)
	}
	e.subscribers[eventType][subId] = sub
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return subId, sub.ch
}

func (e *EventBus) handle(eventType EventType, handlerFunc EventHandlerFunc, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(
				"event handler panic",
				"type", eventType,
				"error", fmt.Sprintf("%v", r),
			)
			if e.metrics != nil {
				e.metrics.deliveryErrors.WithLabelValues(string(eventType), "panic").Inc()
			}
		}
	}()
	handlerFunc(evt)
}

// Unsubscribe stops delivery to an existing subscriber and closes its
// channel
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	var sub *subscriber
	if evtTypeSubs, ok := e.subscribers[eventType]; ok {
		if s, ok := evtTypeSubs[subId]; ok {
			sub = s
			delete(evtTypeSubs, subId)
			if len(evtTypeSubs) == 0 {
				delete(e.subscribers, eventType)
			}
			if e.metrics != nil {
				e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
			}
		}
	}
	e.mu.Unlock()
	if sub != nil {
		sub.close()
	}
}

// Publish delivers an event to every subscriber of eventType
func (e *EventBus) Publish(eventType EventType, evt Event) {
	e.mu.RLock()
	subs := make([]*subscriber, 0, len(e.subscribers[eventType]))
	for _, sub := range e.subscribers[eventType] {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()
	for _, sub := range subs {
		if sub.deliver(evt) {
			continue
		}
		e.logger.Debug("subscriber queue full, dropping event", "type", eventType)
		if e.metrics != nil {
			e.metrics.deliveryErrors.WithLabelValues(string(eventType), "queue-full").Inc()
		}
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// PublishAsync queues an event for delivery by the worker pool. It returns
// false if the bus is stopped or the queue is full.
func (e *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return false
	}
	select {
	case e.asyncQueue <- asyncEvent{eventType: eventType, event: evt}:
		return true
	default:
		e.logger.Warn("async event queue full, dropping event", "type", eventType)
		if e.metrics != nil {
			e.metrics.deliveryErrors.WithLabelValues(string(eventType), "async-dropped").Inc()
		}
		return false
	}
}

// Stop halts the async workers, closes every subscriber and waits for
// SubscribeFunc handlers to return. Later subscriptions are refused.
func (e *EventBus) Stop() {
	e.stopOnce.Do(func() {
		e.stopMu.Lock()
		e.stopped = true
		e.stopMu.Unlock()

		close(e.stopCh)
		e.asyncWg.Wait()

		e.mu.Lock()
		subs := e.subscribers
		e.subscribers = make(map[EventType]map[EventSubscriberId]*subscriber)
		e.mu.Unlock()
		for _, evtTypeSubs := range subs {
			for _, sub := range evtTypeSubs {
				sub.close()
			}
		}
		if e.metrics != nil {
			e.metrics.subscribers.Reset()
		}
		e.handlerWg.Wait()
	})
}
