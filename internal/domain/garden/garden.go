package garden

import "sort"

// Garden is one member's full inventory in one guild: the shed plus the
// 5x5 planting grid.
type Garden struct {
	GuildID string  `json:"guild_id"`
	UserID  string  `json:"user_id"`
	Stacks  []Stack `json:"stacks"`
}

// HasHouse reports whether the garden has been initialized. Every created
// garden carries exactly one house stack.
func (g Garden) HasHouse() bool {
	for _, s := range g.Stacks {
		if s.Kind == KindHouse {
			return true
		}
	}
	return false
}

// At returns the stack occupying a grid tile, or nil if the tile is free.
func (g Garden) At(t Tile) *Stack {
	for i := range g.Stacks {
		if g.Stacks[i].X == t.X && g.Stacks[i].Y == t.Y && !g.Stacks[i].InStorage() {
			return &g.Stacks[i]
		}
	}
	return nil
}

// Grouped collapses the shed into one summed stack per kind while keeping
// planted stacks individual. This is the view menus and trades operate on.
func (g Garden) Grouped() []Stack {
	var out []Stack
	idx := make(map[Kind]int)
	for _, s := range g.Stacks {
		if !s.InStorage() {
			out = append(out, s)
			continue
		}
		if i, ok := idx[s.Kind]; ok {
			out[i].Quantity += s.Quantity
			if s.CreatedAt.Before(out[i].CreatedAt) {
				out[i].CreatedAt = s.CreatedAt
			}
			continue
		}
		idx[s.Kind] = len(out)
		out = append(out, s)
	}
	return out
}

// StorageQueue returns the shed rows of one kind, oldest first. Selling,
// planting and trading always consume from the head of this queue.
func (g Garden) StorageQueue(kind Kind) []Stack {
	var q []Stack
	for _, s := range g.Stacks {
		if s.InStorage() && s.Kind == kind {
			q = append(q, s)
		}
	}
	sort.Slice(q, func(i, j int) bool {
		if !q[i].CreatedAt.Equal(q[j].CreatedAt) {
			return q[i].CreatedAt.Before(q[j].CreatedAt)
		}
		return q[i].ID < q[j].ID
	})
	return q
}

// StorageCount sums the shed quantity of one kind.
func (g Garden) StorageCount(kind Kind) int {
	n := 0
	for _, s := range g.Stacks {
		if s.InStorage() && s.Kind == kind {
			n += s.Quantity
		}
	}
	return n
}

// Coins returns the coin balance.
func (g Garden) Coins() int {
	return g.StorageCount(KindCoins)
}

// Water returns the watering can balance.
func (g Garden) Water() int {
	return g.StorageCount(KindWater)
}

// WaterableStacks returns every planted crop that watering would advance.
func (g Garden) WaterableStacks() []Stack {
	var out []Stack
	for _, s := range g.Stacks {
		if s.Waterable() {
			out = append(out, s)
		}
	}
	return out
}

// OwnedCrops returns the distinct crop kinds present anywhere in the garden.
func (g Garden) OwnedCrops() map[Kind]bool {
	owned := make(map[Kind]bool)
	for _, s := range g.Stacks {
		if s.Kind.IsCrop() {
			owned[s.Kind] = true
		}
	}
	return owned
}
