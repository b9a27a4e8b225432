// Package events provides the append-only ledger of garden activity.
// Every mutating operation leaves a record here before the bot announces it.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a garden event.
type EventType string

const (
	EventTypeGardenCreated EventType = "GARDEN_CREATED"
	EventTypePlant         EventType = "PLANT"
	EventTypeWater         EventType = "WATER"
	EventTypeHarvest       EventType = "HARVEST"
	EventTypeBuy           EventType = "BUY"
	EventTypeSell          EventType = "SELL"
	EventTypeTradeOffered  EventType = "TRADE_OFFERED"
	EventTypeTradeAccepted EventType = "TRADE_ACCEPTED"
	EventTypeTradePurged   EventType = "TRADE_PURGED"
	EventTypeGrowthTick    EventType = "GROWTH_TICK"
	EventTypeGiftOpened    EventType = "GIFT_OPENED"
	EventTypeWaterCredited EventType = "WATER_CREDITED"
)

// GardenEvent is an immutable record of one action in the economy.
type GardenEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	GuildID   string      `json:"guild_id"`
	ActorID   string      `json:"actor_id"`  // Who performed the action
	TargetID  string      `json:"target_id"` // Who was affected (optional)
	Payload   interface{} `json:"payload"`   // Event-specific data
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GardenEvent) error
}

// EventLog is the in-memory append-only log of garden events, with
// write-through to an optional persister.
type EventLog struct {
	mu        sync.RWMutex
	events    []GardenEvent
	persister EventPersister
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]GardenEvent, 0),
		persister: persister,
	}
}

// Append adds a new event to the log. Events are immutable once appended.
func (el *EventLog) Append(event GardenEvent) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.events = append(el.events, event)

	if el.persister != nil {
		// Write through to persistent storage off the caller's path.
		go func(e GardenEvent) {
			_ = el.persister.Append(e)
		}(event)
	}
}

// GetByActor returns all events performed by a specific member.
func (el *EventLog) GetByActor(actorID string) []GardenEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GardenEvent
	for _, e := range el.events {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// GetByGuild returns all events recorded for one guild.
func (el *EventLog) GetByGuild(guildID string) []GardenEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GardenEvent
	for _, e := range el.events {
		if e.GuildID == guildID {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns the full in-memory history of events.
func (el *EventLog) Replay() []GardenEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.events
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
