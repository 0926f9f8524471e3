/*
Package notify is the process-wide publish/subscribe channel for domain
events.

PURPOSE:
  Lets external observers react to ledger mutations without the ledger
  depending on them. Handlers are registered per event type with an
  explicit subscription handle; forgetting to hold the handle and
  unsubscribe is the only way to leak, and Close releases everything.

CONTRACT:
  - Fire-and-forget: Publish never returns an error and a panicking
    subscriber cannot roll back the mutation that triggered the event.
  - Publish order matches mutation order; handlers run synchronously on
    the publishing goroutine.
  - At-least-once delivery to currently-subscribed listeners. Subscribers
    registered after a publish do not see it.

USAGE:
  hub := notify.NewHub()
  sub := notify.Subscribe(hub, func(e budget.FundUpdated) {
      // refresh dashboard
  })
  defer sub.Unsubscribe()

  notify.Publish(hub, budget.FundUpdated{...})
*/
package notify

import (
	"log"
	"reflect"
	"sync"
)

// Hub routes published events to handlers registered for their type.
// Safe for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]map[int]func(any)
	nextID   int
	closed   bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{handlers: make(map[reflect.Type]map[int]func(any))}
}

// Subscription is the handle returned by Subscribe. Unsubscribe is
// idempotent.
type Subscription struct {
	hub  *Hub
	typ  reflect.Type
	id   int
	once sync.Once
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if set, ok := s.hub.handlers[s.typ]; ok {
			delete(set, s.id)
		}
	})
}

// Subscribe registers a typed handler and returns its subscription handle.
func Subscribe[E any](h *Hub, fn func(E)) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	typ := reflect.TypeOf((*E)(nil)).Elem()
	if h.handlers[typ] == nil {
		h.handlers[typ] = make(map[int]func(any))
	}
	h.nextID++
	id := h.nextID
	h.handlers[typ][id] = func(e any) { fn(e.(E)) }

	return &Subscription{hub: h, typ: typ, id: id}
}

// Publish delivers the event to every handler registered for its type.
// Handler panics are recovered and logged; they never propagate to the
// publisher.
func Publish[E any](h *Hub, event E) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	set := h.handlers[reflect.TypeOf((*E)(nil)).Elem()]
	// Snapshot so a handler can unsubscribe itself mid-publish.
	fns := make([]func(any), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		deliver(fn, event)
	}
}

func deliver[E any](fn func(any), event E) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("notify: subscriber panic: %v", r)
		}
	}()
	fn(event)
}

// Close drops all subscriptions. Publishes after Close are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.handlers = make(map[reflect.Type]map[int]func(any))
}
