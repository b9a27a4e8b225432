package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by engine tests and local runs
// without a database. Run snapshots the whole state up front and restores
// it when fn fails, matching the SQLite transaction semantics.
type MemoryStore struct {
	mu         sync.Mutex
	nextItemID int64
	nextGiftID int64
	items      []ItemStack
	trades     map[string]TradeOffer
	gifts      []GiftGrant
	counts     map[string]CharCount
	events     []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextItemID: 1,
		nextGiftID: 1,
		trades:     make(map[string]TradeOffer),
		counts:     make(map[string]CharCount),
	}
}

func ownerKey(guildID, userID string) string {
	return guildID + "|" + userID
}

func (m *MemoryStore) snapshot() *MemoryStore {
	snap := &MemoryStore{
		nextItemID: m.nextItemID,
		nextGiftID: m.nextGiftID,
		items:      append([]ItemStack(nil), m.items...),
		gifts:      append([]GiftGrant(nil), m.gifts...),
		events:     append([]Event(nil), m.events...),
		trades:     make(map[string]TradeOffer, len(m.trades)),
		counts:     make(map[string]CharCount, len(m.counts)),
	}
	for k, v := range m.trades {
		snap.trades[k] = v
	}
	for k, v := range m.counts {
		snap.counts[k] = v
	}
	return snap
}

func (m *MemoryStore) restore(snap *MemoryStore) {
	m.nextItemID = snap.nextItemID
	m.nextGiftID = snap.nextGiftID
	m.items = snap.items
	m.gifts = snap.gifts
	m.events = snap.events
	m.trades = snap.trades
	m.counts = snap.counts
}

func (m *MemoryStore) storesFor(direct bool) Stores {
	return Stores{
		Items:  &memItemRepo{s: m, direct: direct},
		Trades: &memTradeRepo{s: m, direct: direct},
		Gifts:  &memGiftRepo{s: m, direct: direct},
		Counts: &memCounterRepo{s: m, direct: direct},
		Events: &memEventRepo{s: m, direct: direct},
	}
}

// Stores returns repositories that lock per call, for direct reads.
func (m *MemoryStore) Stores() Stores {
	return m.storesFor(true)
}

// Run executes fn atomically against the in-memory state.
func (m *MemoryStore) Run(ctx context.Context, fn func(Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(m.storesFor(false)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memView struct {
	s      *MemoryStore
	direct bool
}

// lock takes the store mutex only on the direct path; inside Run the
// transaction already holds it.
func (v memView) lock() func() {
	if v.direct {
		v.s.mu.Lock()
		return v.s.mu.Unlock
	}
	return func() {}
}

func sortStacks(stacks []ItemStack) {
	sort.Slice(stacks, func(i, j int) bool {
		if !stacks[i].CreatedAt.Equal(stacks[j].CreatedAt) {
			return stacks[i].CreatedAt.Before(stacks[j].CreatedAt)
		}
		return stacks[i].ID < stacks[j].ID
	})
}

// ---------------------------------------------------------
// memItemRepo
// ---------------------------------------------------------

type memItemRepo struct {
	s      *MemoryStore
	direct bool
}

func (r *memItemRepo) view() memView { return memView{s: r.s, direct: r.direct} }

func (r *memItemRepo) ListStacks(ctx context.Context, guildID, userID string) ([]ItemStack, error) {
	defer r.view().lock()()
	var out []ItemStack
	for _, s := range r.s.items {
		if s.GuildID == guildID && s.UserID == userID {
			out = append(out, s)
		}
	}
	sortStacks(out)
	return out, nil
}

func (r *memItemRepo) InsertStacks(ctx context.Context, stacks []ItemStack) error {
	defer r.view().lock()()
	for _, s := range stacks {
		s.ID = r.s.nextItemID
		r.s.nextItemID++
		r.s.items = append(r.s.items, s)
	}
	return nil
}

func (r *memItemRepo) DeleteStacks(ctx context.Context, ids []int64) error {
	defer r.view().lock()()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := r.s.items[:0]
	for _, s := range r.s.items {
		if !drop[s.ID] {
			kept = append(kept, s)
		}
	}
	r.s.items = kept
	return nil
}

func (r *memItemRepo) OldestStorage(ctx context.Context, guildID, userID, kind string, limit int) ([]ItemStack, error) {
	defer r.view().lock()()
	var out []ItemStack
	for _, s := range r.s.items {
		if s.GuildID == guildID && s.UserID == userID && s.Kind == kind && s.X == 0 && s.Y == 0 {
			out = append(out, s)
		}
	}
	sortStacks(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memItemRepo) findCounter(guildID, userID, kind string) int {
	for i := range r.s.items {
		s := &r.s.items[i]
		if s.GuildID == guildID && s.UserID == userID && s.Kind == kind && s.X == 0 && s.Y == 0 {
			return i
		}
	}
	return -1
}

func (r *memItemRepo) AddCounter(ctx context.Context, guildID, userID, kind string, delta int, now time.Time) error {
	defer r.view().lock()()
	if i := r.findCounter(guildID, userID, kind); i >= 0 {
		r.s.items[i].Quantity += delta
		r.s.items[i].UpdatedAt = now
		return nil
	}
	r.s.items = append(r.s.items, ItemStack{
		ID: r.s.nextItemID, GuildID: guildID, UserID: userID, Kind: kind,
		Quantity: delta, CreatedAt: now, UpdatedAt: now,
	})
	r.s.nextItemID++
	return nil
}

func (r *memItemRepo) AddCounterCapped(ctx context.Context, guildID, userID, kind string, delta, cap int, now time.Time) error {
	defer r.view().lock()()
	if i := r.findCounter(guildID, userID, kind); i >= 0 {
		q := r.s.items[i].Quantity + delta
		if q > cap {
			q = cap
		}
		r.s.items[i].Quantity = q
		r.s.items[i].UpdatedAt = now
		return nil
	}
	if delta > cap {
		delta = cap
	}
	r.s.items = append(r.s.items, ItemStack{
		ID: r.s.nextItemID, GuildID: guildID, UserID: userID, Kind: kind,
		Quantity: delta, CreatedAt: now, UpdatedAt: now,
	})
	r.s.nextItemID++
	return nil
}

func (r *memItemRepo) SpendCounter(ctx context.Context, guildID, userID, kind string, amount int, now time.Time) error {
	defer r.view().lock()()
	i := r.findCounter(guildID, userID, kind)
	if i < 0 || r.s.items[i].Quantity < amount {
		return ErrInsufficient
	}
	r.s.items[i].Quantity -= amount
	r.s.items[i].UpdatedAt = now
	return nil
}

func (r *memItemRepo) SetWatered(ctx context.Context, ids []int64, watered bool, now time.Time) error {
	defer r.view().lock()()
	mark := make(map[int64]bool, len(ids))
	for _, id := range ids {
		mark[id] = true
	}
	for i := range r.s.items {
		if mark[r.s.items[i].ID] {
			r.s.items[i].Watered = watered
			r.s.items[i].UpdatedAt = now
		}
	}
	return nil
}

func (r *memItemRepo) ReassignOwner(ctx context.Context, ids []int64, toUserID string, now time.Time) error {
	defer r.view().lock()()
	move := make(map[int64]bool, len(ids))
	for _, id := range ids {
		move[id] = true
	}
	for i := range r.s.items {
		if move[r.s.items[i].ID] {
			r.s.items[i].UserID = toUserID
			r.s.items[i].UpdatedAt = now
		}
	}
	return nil
}

func (r *memItemRepo) GrowPlanted(ctx context.Context, kinds []string, wateredOnly bool, maxStage int, now time.Time) (int64, error) {
	defer r.view().lock()()
	isKind := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		isKind[k] = true
	}
	var grown int64
	for i := range r.s.items {
		s := &r.s.items[i]
		if s.X == 0 || s.Y == 0 || !isKind[s.Kind] || s.Quantity >= maxStage {
			continue
		}
		if wateredOnly {
			// The wither reset clears the watered flag, so this pass can
			// never touch a crop reset earlier in the same tick.
			if !s.Watered {
				continue
			}
		} else if !s.UpdatedAt.Before(now) {
			// Rows the wither reset stamped this tick sit out the growth
			// pass; a freshly reset crop stays at stage one.
			continue
		}
		s.Quantity++
		s.UpdatedAt = now
		grown++
	}
	return grown, nil
}

func (r *memItemRepo) ClearWatered(ctx context.Context, now time.Time) error {
	defer r.view().lock()()
	for i := range r.s.items {
		s := &r.s.items[i]
		if s.Watered && s.X != 0 && s.Y != 0 {
			s.Watered = false
		}
	}
	return nil
}

func (r *memItemRepo) ResetWithered(ctx context.Context, kinds []string, cutoff, now time.Time) (int64, error) {
	defer r.view().lock()()
	isKind := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		isKind[k] = true
	}
	var reset int64
	for i := range r.s.items {
		s := &r.s.items[i]
		if s.X != 0 && s.Y != 0 && isKind[s.Kind] && s.UpdatedAt.Before(cutoff) {
			s.Quantity = 1
			s.Watered = false
			s.UpdatedAt = now
			reset++
		}
	}
	return reset, nil
}

func (r *memItemRepo) DeleteSpoiledStorage(ctx context.Context, kinds []string, cutoff time.Time) (int64, error) {
	defer r.view().lock()()
	isKind := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		isKind[k] = true
	}
	var removed int64
	kept := r.s.items[:0]
	for _, s := range r.s.items {
		if s.X == 0 && s.Y == 0 && isKind[s.Kind] && !s.CreatedAt.After(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	r.s.items = kept
	return removed, nil
}

// ---------------------------------------------------------
// memTradeRepo
// ---------------------------------------------------------

type memTradeRepo struct {
	s      *MemoryStore
	direct bool
}

func (r *memTradeRepo) view() memView { return memView{s: r.s, direct: r.direct} }

func (r *memTradeRepo) GetOffer(ctx context.Context, guildID, userID string) (*TradeOffer, error) {
	defer r.view().lock()()
	if o, ok := r.s.trades[ownerKey(guildID, userID)]; ok {
		return &o, nil
	}
	return nil, nil
}

func (r *memTradeRepo) UpsertOffer(ctx context.Context, offer TradeOffer) error {
	defer r.view().lock()()
	r.s.trades[ownerKey(offer.GuildID, offer.UserID)] = offer
	return nil
}

func (r *memTradeRepo) DeleteOffer(ctx context.Context, guildID, userID string) error {
	defer r.view().lock()()
	delete(r.s.trades, ownerKey(guildID, userID))
	return nil
}

// ---------------------------------------------------------
// memGiftRepo
// ---------------------------------------------------------

type memGiftRepo struct {
	s      *MemoryStore
	direct bool
}

func (r *memGiftRepo) view() memView { return memView{s: r.s, direct: r.direct} }

func (r *memGiftRepo) InsertGrants(ctx context.Context, grants []GiftGrant) error {
	defer r.view().lock()()
	for _, g := range grants {
		g.ID = r.s.nextGiftID
		r.s.nextGiftID++
		r.s.gifts = append(r.s.gifts, g)
	}
	return nil
}

func (r *memGiftRepo) ListUnopened(ctx context.Context, guildID, userID string, grantIDs []int) ([]GiftGrant, error) {
	defer r.view().lock()()
	want := make(map[int]bool, len(grantIDs))
	for _, id := range grantIDs {
		want[id] = true
	}
	var out []GiftGrant
	for _, g := range r.s.gifts {
		if g.GuildID == guildID && g.UserID == userID && !g.Opened && want[g.GrantID] {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memGiftRepo) MarkOpened(ctx context.Context, ids []int64) error {
	defer r.view().lock()()
	mark := make(map[int64]bool, len(ids))
	for _, id := range ids {
		mark[id] = true
	}
	for i := range r.s.gifts {
		if mark[r.s.gifts[i].ID] {
			r.s.gifts[i].Opened = true
		}
	}
	return nil
}

// ---------------------------------------------------------
// memCounterRepo
// ---------------------------------------------------------

type memCounterRepo struct {
	s      *MemoryStore
	direct bool
}

func (r *memCounterRepo) view() memView { return memView{s: r.s, direct: r.direct} }

func (r *memCounterRepo) ListCounts(ctx context.Context) ([]CharCount, error) {
	defer r.view().lock()()
	var out []CharCount
	for _, c := range r.s.counts {
		out = append(out, c)
	}
	return out, nil
}

func (r *memCounterRepo) UpsertCount(ctx context.Context, count CharCount) error {
	defer r.view().lock()()
	r.s.counts[ownerKey(count.GuildID, count.UserID)] = count
	return nil
}

// ---------------------------------------------------------
// memEventRepo
// ---------------------------------------------------------

type memEventRepo struct {
	s      *MemoryStore
	direct bool
}

func (r *memEventRepo) view() memView { return memView{s: r.s, direct: r.direct} }

func (r *memEventRepo) AppendEvent(ctx context.Context, event Event) error {
	defer r.view().lock()()
	r.s.events = append(r.s.events, event)
	return nil
}

func (r *memEventRepo) ListEventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]Event, error) {
	defer r.view().lock()()
	var out []Event
	for _, e := range r.s.events {
		if e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memEventRepo) DeleteEvents(ctx context.Context, ids []string) error {
	defer r.view().lock()()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := r.s.events[:0]
	for _, e := range r.s.events {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	r.s.events = kept
	return nil
}
