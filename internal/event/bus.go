package event

import (
	"strings"
	"sync"
	"time"
)

const (
	EventSubscriberExpiring = "subscriber.expiring"
	EventSubscriberExpired  = "subscriber.expired"
	EventSubscriberRenewed  = "subscriber.renewed"
)

type SubscriberExpiringPayload struct {
	SubscriberID string    `json:"subscriber_id"`
	TenantID     string    `json:"tenant_id"`
	DaysLeft     int       `json:"days_left"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type SubscriberExpiredPayload struct {
	SubscriberID string `json:"subscriber_id"`
	TenantID     string `json:"tenant_id"`
}

type SubscriberRenewedPayload struct {
	SubscriberID string    `json:"subscriber_id"`
	TenantID     string    `json:"tenant_id"`
	NewExpiry    time.Time `json:"new_expiry"`
	Charged      int64     `json:"charged"`
}

// Bus is a minimal in-process pub/sub: handlers run on their own
// goroutine, publishers never block.
type Bus struct {
	handlers sync.Map
	mu       sync.Mutex
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(event string, handler func(payload any)) {
	if b == nil || handler == nil {
		return
	}

	eventName := strings.TrimSpace(event)
	if eventName == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := make([]func(payload any), 0, 1)
	if current, ok := b.handlers.Load(eventName); ok {
		if casted, valid := current.([]func(payload any)); valid {
			handlers = append(handlers, casted...)
		}
	}
	handlers = append(handlers, handler)
	b.handlers.Store(eventName, handlers)
}

func (b *Bus) Publish(event string, payload any) {
	if b == nil {
		return
	}

	eventName := strings.TrimSpace(event)
	if eventName == "" {
		return
	}

	current, ok := b.handlers.Load(eventName)
	if !ok {
		return
	}

	handlers, ok := current.([]func(payload any))
	if !ok || len(handlers) == 0 {
		return
	}

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		go handler(payload)
	}
}
