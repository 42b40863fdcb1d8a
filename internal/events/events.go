package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fieldbill/internal/models"

	"github.com/rs/zerolog"
)

// Event types published by the preview service.
const (
	PreviewGenerated     = "preview.generated"
	CoverageGapsDetected = "coverage.gaps_detected"
)

// PreviewPayload is the payload of PreviewGenerated and CoverageGapsDetected.
type PreviewPayload struct {
	RunID      string               `json:"run_id"`
	CustomerID string               `json:"customer_id"`
	JobIDs     []string             `json:"job_ids"`
	Items      []models.LineItem    `json:"items,omitempty"`
	Gaps       []models.CoverageGap `json:"gaps"`
	Subtotal   float64              `json:"subtotal"`
	Blocked    bool                 `json:"blocked"`
	Digest     string               `json:"digest"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler failures are logged to logger.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			b.logger.Error().Err(err).Str("type", event.Type).Str("event_id", event.ID).Msg("event handler failed")
		}
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(id, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	b.Publish(Event{ID: id, Type: eventType, Payload: data})
	return nil
}
