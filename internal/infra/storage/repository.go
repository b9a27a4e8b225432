// Package storage provides the persistence layer for the garden server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrInsufficient is returned by conditional counter debits when the balance
// does not cover the amount. No partial write happens.
var ErrInsufficient = errors.New("insufficient counter balance")

// ItemStack mirrors the domain stack structure for persistence.
// The domain package should NOT import this; use interfaces instead.
type ItemStack struct {
	ID        int64     `json:"id" db:"id"`
	GuildID   string    `json:"guild_id" db:"guild_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Kind      string    `json:"kind" db:"kind"`
	X         int       `json:"x" db:"x"`
	Y         int       `json:"y" db:"y"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Watered   bool      `json:"watered" db:"watered"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ItemStore is the inventory repository. Counter rows (coins, water) are
// summed quantities at the storage tile; crop units are discrete rows.
type ItemStore interface {
	// ListStacks returns every row owned by one member, oldest first.
	ListStacks(ctx context.Context, guildID, userID string) ([]ItemStack, error)

	// InsertStacks appends new rows. IDs are assigned by the store.
	InsertStacks(ctx context.Context, stacks []ItemStack) error

	// DeleteStacks removes rows by id.
	DeleteStacks(ctx context.Context, ids []int64) error

	// OldestStorage returns up to limit storage-tile rows of a kind,
	// oldest first. This is the FIFO consumption queue.
	OldestStorage(ctx context.Context, guildID, userID, kind string, limit int) ([]ItemStack, error)

	// AddCounter upserts the summed counter row for a kind, adding delta.
	AddCounter(ctx context.Context, guildID, userID, kind string, delta int, now time.Time) error

	// AddCounterCapped is AddCounter with an upper bound on the result.
	AddCounterCapped(ctx context.Context, guildID, userID, kind string, delta, cap int, now time.Time) error

	// SpendCounter atomically subtracts amount from the counter row,
	// only if the balance covers it. Returns ErrInsufficient otherwise.
	SpendCounter(ctx context.Context, guildID, userID, kind string, amount int, now time.Time) error

	// SetWatered flips the watered flag on the given rows.
	SetWatered(ctx context.Context, ids []int64, watered bool, now time.Time) error

	// ReassignOwner moves rows to another member of the same guild.
	ReassignOwner(ctx context.Context, ids []int64, toUserID string, now time.Time) error

	// GrowPlanted advances every planted row of the given kinds below
	// maxStage by one, optionally only watered ones. Returns rows grown.
	GrowPlanted(ctx context.Context, kinds []string, wateredOnly bool, maxStage int, now time.Time) (int64, error)

	// ClearWatered resets the watered flag on every planted row.
	ClearWatered(ctx context.Context, now time.Time) error

	// ResetWithered knocks planted rows untouched since cutoff back to
	// stage one. Returns rows reset.
	ResetWithered(ctx context.Context, kinds []string, cutoff, now time.Time) (int64, error)

	// DeleteSpoiledStorage removes storage-tile crop rows created at or
	// before cutoff. Returns rows removed.
	DeleteSpoiledStorage(ctx context.Context, kinds []string, cutoff time.Time) (int64, error)
}

// TradeOffer mirrors the domain trade offer for persistence. Amounts are
// stored as text so the late-bound "all" survives round trips.
type TradeOffer struct {
	GuildID       string    `json:"guild_id" db:"guild_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	TargetID      string    `json:"target_id" db:"target_id"`
	OfferKind     string    `json:"offer_kind" db:"offer_kind"`
	OfferAmount   string    `json:"offer_amount" db:"offer_amount"`
	RequestKind   string    `json:"request_kind" db:"request_kind"`
	RequestAmount string    `json:"request_amount" db:"request_amount"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// TradeStore keys offers by (guild, user): one live offer per member.
type TradeStore interface {
	// GetOffer returns the member's offer, or nil if none is posted.
	GetOffer(ctx context.Context, guildID, userID string) (*TradeOffer, error)

	// UpsertOffer posts an offer, replacing any previous one.
	UpsertOffer(ctx context.Context, offer TradeOffer) error

	// DeleteOffer withdraws the member's offer. Deleting a missing offer
	// is not an error.
	DeleteOffer(ctx context.Context, guildID, userID string) error
}

// GiftGrant is one pending achievement gift for a member.
type GiftGrant struct {
	ID        int64     `json:"id" db:"id"`
	GuildID   string    `json:"guild_id" db:"guild_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	GrantID   int       `json:"grant_id" db:"grant_id"`
	Opened    bool      `json:"opened" db:"opened"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// GiftStore tracks which achievement gifts a member has yet to open.
type GiftStore interface {
	// InsertGrants records newly earned gifts.
	InsertGrants(ctx context.Context, grants []GiftGrant) error

	// ListUnopened returns the member's unopened grants for the given
	// grant ids, oldest first.
	ListUnopened(ctx context.Context, guildID, userID string, grantIDs []int) ([]GiftGrant, error)

	// MarkOpened flags grants as consumed.
	MarkOpened(ctx context.Context, ids []int64) error
}

// CharCount is the persisted roleplay character tally for the water faucet.
type CharCount struct {
	GuildID    string    `json:"guild_id" db:"guild_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Characters int       `json:"characters" db:"characters"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// CounterStore persists the character tallies between restarts.
type CounterStore interface {
	ListCounts(ctx context.Context) ([]CharCount, error)
	UpsertCount(ctx context.Context, count CharCount) error
}

// Event mirrors the domain event structure for persistence.
type Event struct {
	ID        string                 `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	GuildID   string                 `json:"guild_id" db:"guild_id"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	TargetID  string                 `json:"target_id" db:"target_id"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
}

// EventStore is the durable side of the event ledger.
type EventStore interface {
	// AppendEvent adds a new event to the immutable ledger.
	AppendEvent(ctx context.Context, event Event) error

	// ListEventsBefore returns up to limit events older than cutoff,
	// oldest first. Used by the archiver.
	ListEventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]Event, error)

	// DeleteEvents removes archived events from the live table.
	DeleteEvents(ctx context.Context, ids []string) error
}

// Stores bundles every repository bound to one connection or transaction.
type Stores struct {
	Items  ItemStore
	Trades TradeStore
	Gifts  GiftStore
	Counts CounterStore
	Events EventStore
}

// Store is the full persistence surface the engine depends on. Run executes
// fn inside a single transaction; any error rolls the whole unit back.
type Store interface {
	Run(ctx context.Context, fn func(Stores) error) error
	Stores() Stores
}
