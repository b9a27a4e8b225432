package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same repositories serve both direct reads and units of work.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func stringArgs(vals []string) []interface{} {
	args := make([]interface{}, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

// ---------------------------------------------------------
// SQLiteItemRepository
// ---------------------------------------------------------

// SQLiteItemRepository implements ItemStore for SQLite.
type SQLiteItemRepository struct {
	db dbtx
}

func NewSQLiteItemRepository(db dbtx) *SQLiteItemRepository {
	return &SQLiteItemRepository{db: db}
}

const itemColumns = `id, guild_id, user_id, kind, x, y, quantity, watered, created_at, updated_at`

func (r *SQLiteItemRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]ItemStack, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stacks []ItemStack
	for rows.Next() {
		var s ItemStack
		err := rows.Scan(
			&s.ID, &s.GuildID, &s.UserID, &s.Kind, &s.X, &s.Y,
			&s.Quantity, &s.Watered, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		stacks = append(stacks, s)
	}
	return stacks, rows.Err()
}

func (r *SQLiteItemRepository) ListStacks(ctx context.Context, guildID, userID string) ([]ItemStack, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE guild_id = ? AND user_id = ? ORDER BY created_at ASC, id ASC`
	return r.getMany(ctx, query, guildID, userID)
}

func (r *SQLiteItemRepository) InsertStacks(ctx context.Context, stacks []ItemStack) error {
	query := `
		INSERT INTO items (guild_id, user_id, kind, x, y, quantity, watered, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, s := range stacks {
		_, err := r.db.ExecContext(ctx, query,
			s.GuildID, s.UserID, s.Kind, s.X, s.Y, s.Quantity, s.Watered, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item stack: %w", err)
		}
	}
	return nil
}

func (r *SQLiteItemRepository) DeleteStacks(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `DELETE FROM items WHERE id IN (` + placeholders(len(ids)) + `)`
	_, err := r.db.ExecContext(ctx, query, int64Args(ids)...)
	return err
}

func (r *SQLiteItemRepository) OldestStorage(ctx context.Context, guildID, userID, kind string, limit int) ([]ItemStack, error) {
	query := `SELECT ` + itemColumns + ` FROM items
		WHERE guild_id = ? AND user_id = ? AND kind = ? AND x = 0 AND y = 0
		ORDER BY created_at ASC, id ASC LIMIT ?`
	return r.getMany(ctx, query, guildID, userID, kind, limit)
}

func (r *SQLiteItemRepository) AddCounter(ctx context.Context, guildID, userID, kind string, delta int, now time.Time) error {
	query := `UPDATE items SET quantity = quantity + ?, updated_at = ?
		WHERE guild_id = ? AND user_id = ? AND kind = ? AND x = 0 AND y = 0`
	res, err := r.db.ExecContext(ctx, query, delta, now, guildID, userID, kind)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.InsertStacks(ctx, []ItemStack{{
			GuildID: guildID, UserID: userID, Kind: kind,
			Quantity: delta, CreatedAt: now, UpdatedAt: now,
		}})
	}
	return nil
}

func (r *SQLiteItemRepository) AddCounterCapped(ctx context.Context, guildID, userID, kind string, delta, cap int, now time.Time) error {
	query := `UPDATE items SET quantity = MIN(?, quantity + ?), updated_at = ?
		WHERE guild_id = ? AND user_id = ? AND kind = ? AND x = 0 AND y = 0`
	res, err := r.db.ExecContext(ctx, query, cap, delta, now, guildID, userID, kind)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if delta > cap {
			delta = cap
		}
		return r.InsertStacks(ctx, []ItemStack{{
			GuildID: guildID, UserID: userID, Kind: kind,
			Quantity: delta, CreatedAt: now, UpdatedAt: now,
		}})
	}
	return nil
}

func (r *SQLiteItemRepository) SpendCounter(ctx context.Context, guildID, userID, kind string, amount int, now time.Time) error {
	// Conditional debit: the balance check and the subtraction are one
	// statement, so concurrent spenders cannot overdraw.
	query := `UPDATE items SET quantity = quantity - ?, updated_at = ?
		WHERE guild_id = ? AND user_id = ? AND kind = ? AND x = 0 AND y = 0 AND quantity >= ?`
	res, err := r.db.ExecContext(ctx, query, amount, now, guildID, userID, kind, amount)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficient
	}
	return nil
}

func (r *SQLiteItemRepository) SetWatered(ctx context.Context, ids []int64, watered bool, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE items SET watered = ?, updated_at = ? WHERE id IN (` + placeholders(len(ids)) + `)`
	args := append([]interface{}{watered, now}, int64Args(ids)...)
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *SQLiteItemRepository) ReassignOwner(ctx context.Context, ids []int64, toUserID string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE items SET user_id = ?, updated_at = ? WHERE id IN (` + placeholders(len(ids)) + `)`
	args := append([]interface{}{toUserID, now}, int64Args(ids)...)
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *SQLiteItemRepository) GrowPlanted(ctx context.Context, kinds []string, wateredOnly bool, maxStage int, now time.Time) (int64, error) {
	query := `UPDATE items SET quantity = quantity + 1, updated_at = ?
		WHERE x <> 0 AND y <> 0 AND quantity < ? AND kind IN (` + placeholders(len(kinds)) + `)`
	args := append([]interface{}{now, maxStage}, stringArgs(kinds)...)
	if wateredOnly {
		// The wither reset clears the watered flag, so this pass can never
		// touch a crop reset earlier in the same tick.
		query += ` AND watered = 1`
	} else {
		// updated_at < now excludes rows the wither reset stamped this tick,
		// so a freshly reset crop stays at stage one until the next pass.
		query += ` AND updated_at < ?`
		args = append(args, now)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteItemRepository) ClearWatered(ctx context.Context, now time.Time) error {
	query := `UPDATE items SET watered = 0 WHERE watered = 1 AND x <> 0 AND y <> 0`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

func (r *SQLiteItemRepository) ResetWithered(ctx context.Context, kinds []string, cutoff, now time.Time) (int64, error) {
	query := `UPDATE items SET quantity = 1, watered = 0, updated_at = ?
		WHERE x <> 0 AND y <> 0 AND updated_at < ? AND kind IN (` + placeholders(len(kinds)) + `)`
	args := append([]interface{}{now, cutoff}, stringArgs(kinds)...)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteItemRepository) DeleteSpoiledStorage(ctx context.Context, kinds []string, cutoff time.Time) (int64, error) {
	query := `DELETE FROM items
		WHERE x = 0 AND y = 0 AND created_at <= ? AND kind IN (` + placeholders(len(kinds)) + `)`
	args := append([]interface{}{cutoff}, stringArgs(kinds)...)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------
// SQLiteTradeRepository
// ---------------------------------------------------------

type SQLiteTradeRepository struct {
	db dbtx
}

func NewSQLiteTradeRepository(db dbtx) *SQLiteTradeRepository {
	return &SQLiteTradeRepository{db: db}
}

func (r *SQLiteTradeRepository) GetOffer(ctx context.Context, guildID, userID string) (*TradeOffer, error) {
	query := `SELECT guild_id, user_id, target_id, offer_kind, offer_amount, request_kind, request_amount, created_at
		FROM trades WHERE guild_id = ? AND user_id = ?`
	var o TradeOffer
	err := r.db.QueryRowContext(ctx, query, guildID, userID).Scan(
		&o.GuildID, &o.UserID, &o.TargetID, &o.OfferKind, &o.OfferAmount,
		&o.RequestKind, &o.RequestAmount, &o.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *SQLiteTradeRepository) UpsertOffer(ctx context.Context, offer TradeOffer) error {
	query := `
		INSERT INTO trades (guild_id, user_id, target_id, offer_kind, offer_amount, request_kind, request_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			target_id=excluded.target_id,
			offer_kind=excluded.offer_kind,
			offer_amount=excluded.offer_amount,
			request_kind=excluded.request_kind,
			request_amount=excluded.request_amount,
			created_at=excluded.created_at
	`
	_, err := r.db.ExecContext(ctx, query,
		offer.GuildID, offer.UserID, offer.TargetID, offer.OfferKind, offer.OfferAmount,
		offer.RequestKind, offer.RequestAmount, offer.CreatedAt,
	)
	return err
}

func (r *SQLiteTradeRepository) DeleteOffer(ctx context.Context, guildID, userID string) error {
	query := `DELETE FROM trades WHERE guild_id = ? AND user_id = ?`
	_, err := r.db.ExecContext(ctx, query, guildID, userID)
	return err
}

// ---------------------------------------------------------
// SQLiteGiftRepository
// ---------------------------------------------------------

type SQLiteGiftRepository struct {
	db dbtx
}

func NewSQLiteGiftRepository(db dbtx) *SQLiteGiftRepository {
	return &SQLiteGiftRepository{db: db}
}

func (r *SQLiteGiftRepository) InsertGrants(ctx context.Context, grants []GiftGrant) error {
	query := `INSERT INTO gifts (guild_id, user_id, grant_id, opened, created_at) VALUES (?, ?, ?, ?, ?)`
	for _, g := range grants {
		if _, err := r.db.ExecContext(ctx, query, g.GuildID, g.UserID, g.GrantID, g.Opened, g.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert gift grant: %w", err)
		}
	}
	return nil
}

func (r *SQLiteGiftRepository) ListUnopened(ctx context.Context, guildID, userID string, grantIDs []int) ([]GiftGrant, error) {
	if len(grantIDs) == 0 {
		return nil, nil
	}
	query := `SELECT id, guild_id, user_id, grant_id, opened, created_at FROM gifts
		WHERE guild_id = ? AND user_id = ? AND opened = 0 AND grant_id IN (` + placeholders(len(grantIDs)) + `)
		ORDER BY created_at ASC, id ASC`
	args := []interface{}{guildID, userID}
	for _, id := range grantIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []GiftGrant
	for rows.Next() {
		var g GiftGrant
		if err := rows.Scan(&g.ID, &g.GuildID, &g.UserID, &g.GrantID, &g.Opened, &g.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *SQLiteGiftRepository) MarkOpened(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE gifts SET opened = 1 WHERE id IN (` + placeholders(len(ids)) + `)`
	_, err := r.db.ExecContext(ctx, query, int64Args(ids)...)
	return err
}

// ---------------------------------------------------------
// SQLiteCounterRepository
// ---------------------------------------------------------

type SQLiteCounterRepository struct {
	db dbtx
}

func NewSQLiteCounterRepository(db dbtx) *SQLiteCounterRepository {
	return &SQLiteCounterRepository{db: db}
}

func (r *SQLiteCounterRepository) ListCounts(ctx context.Context) ([]CharCount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT guild_id, user_id, characters, updated_at FROM char_counts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []CharCount
	for rows.Next() {
		var c CharCount
		if err := rows.Scan(&c.GuildID, &c.UserID, &c.Characters, &c.UpdatedAt); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *SQLiteCounterRepository) UpsertCount(ctx context.Context, count CharCount) error {
	query := `
		INSERT INTO char_counts (guild_id, user_id, characters, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			characters=excluded.characters,
			updated_at=excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, count.GuildID, count.UserID, count.Characters, count.UpdatedAt)
	return err
}

// ---------------------------------------------------------
// SQLiteEventRepository
// ---------------------------------------------------------

type SQLiteEventRepository struct {
	db dbtx
}

func NewSQLiteEventRepository(db dbtx) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) AppendEvent(ctx context.Context, event Event) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, event_type, guild_id, actor_id, target_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.GuildID,
		event.ActorID, event.TargetID, string(payloadBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) ListEventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]Event, error) {
	query := `SELECT id, timestamp, event_type, guild_id, actor_id, target_id, payload
		FROM events WHERE timestamp < ? ORDER BY timestamp ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var payloadStr string
		err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.GuildID, &e.ActorID, &e.TargetID, &payloadStr)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) DeleteEvents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `DELETE FROM events WHERE id IN (` + placeholders(len(ids)) + `)`
	_, err := r.db.ExecContext(ctx, query, stringArgs(ids)...)
	return err
}

// ---------------------------------------------------------
// SQLiteStore
// ---------------------------------------------------------

// SQLiteStore binds every repository to one database and provides the
// transactional unit of work.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func storesFor(db dbtx) Stores {
	return Stores{
		Items:  NewSQLiteItemRepository(db),
		Trades: NewSQLiteTradeRepository(db),
		Gifts:  NewSQLiteGiftRepository(db),
		Counts: NewSQLiteCounterRepository(db),
		Events: NewSQLiteEventRepository(db),
	}
}

// Stores returns repositories bound directly to the database, for reads.
func (s *SQLiteStore) Stores() Stores {
	return storesFor(s.db)
}

// Run executes fn inside a single transaction. Any error, including a
// conditional debit failure, rolls the whole unit back.
func (s *SQLiteStore) Run(ctx context.Context, fn func(Stores) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(storesFor(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}
