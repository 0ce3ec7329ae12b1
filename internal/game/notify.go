package game

import (
	"sync"
)

// NotificationType is the category of a session notification.
type NotificationType string

const (
	NotifyCommitted   NotificationType = "committed"
	NotifyUndone      NotificationType = "undone"
	NotifyStatus      NotificationType = "status"
	NotifyClock       NotificationType = "clock"
	NotifyPeriodEnded NotificationType = "period_ended"
	NotifyPending     NotificationType = "pending"
	NotifySettings    NotificationType = "settings"
)

// Notification tells listeners that a session changed.
type Notification struct {
	Type   NotificationType `json:"type"`
	GameID string           `json:"game_id"`
	Event  *Event           `json:"event,omitempty"`
}

// Listener reacts to notifications.
type Listener func(Notification)

type typedListener struct {
	handle   int
	typ      NotificationType
	callback Listener
}

// Bus is a synchronous publish/subscribe hub with optional type filtering.
// Listeners run on the publishing goroutine and must not call back into the
// session.
type Bus struct {
	mu         sync.RWMutex
	listeners  map[int]Listener
	typed      map[NotificationType][]typedListener
	nextHandle int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		listeners: make(map[int]Listener),
		typed:     make(map[NotificationType][]typedListener),
	}
}

// Subscribe registers a listener for every notification and returns its handle.
func (b *Bus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	handle := b.nextHandle
	b.nextHandle++
	b.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for one notification type.
func (b *Bus) SubscribeTyped(typ NotificationType, listener Listener) int {
	if listener == nil {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	handle := b.nextHandle
	b.nextHandle++
	b.typed[typ] = append(b.typed[typ], typedListener{handle: handle, typ: typ, callback: listener})
	return handle
}

// Unsubscribe removes the listener with the given handle.
func (b *Bus) Unsubscribe(handle int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, handle)
	for typ, listeners := range b.typed {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].handle == handle {
				b.typed[typ] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers n to the matching listeners.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		listener(n)
	}
	for _, l := range b.typed[n.Type] {
		l.callback(n)
	}
}
