package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePersister records appended events for assertions.
type capturePersister struct {
	mu     sync.Mutex
	events []GardenEvent
}

func (p *capturePersister) Append(event GardenEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func sample(id, actor, guild string, t EventType) GardenEvent {
	return GardenEvent{
		ID: id, Timestamp: time.Now(), Type: t,
		GuildID: guild, ActorID: actor,
	}
}

func TestAppendAndReplay(t *testing.T) {
	log := NewEventLog(nil)

	log.Append(sample("1", "alice", "g1", EventTypePlant))
	log.Append(sample("2", "bob", "g1", EventTypeSell))
	log.Append(sample("3", "alice", "g2", EventTypeHarvest))

	all := log.Replay()
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0].ID, "replay preserves append order")

	byActor := log.GetByActor("alice")
	require.Len(t, byActor, 2)

	byGuild := log.GetByGuild("g1")
	require.Len(t, byGuild, 2)
	assert.Equal(t, EventTypeSell, byGuild[1].Type)
}

func TestAppendWritesThroughPersister(t *testing.T) {
	p := &capturePersister{}
	log := NewEventLog(p)

	log.Append(sample("1", "alice", "g1", EventTypeBuy))

	// The write-through is async; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for p.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, p.count())
}

func TestGenerateEventIDIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateEventID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
