// Package garden holds the core garden entities: item stacks, the planting
// grid, and the grouped inventory view.
// This package is PURE and must NOT import any infrastructure packages.
package garden

import (
	"fmt"
	"time"
)

// Kind identifies what an item stack contains.
type Kind string

const (
	KindGreenApple  Kind = "green_apple"
	KindBlueberries Kind = "blueberries"
	KindCherries    Kind = "cherries"
	KindCorn        Kind = "corn"
	KindGrapes      Kind = "grapes"
	KindLemon       Kind = "lemon"
	KindPeach       Kind = "peach"
	KindWater       Kind = "water"
	KindCoins       Kind = "coins"
	KindHouse       Kind = "house"
)

// Crops lists every plantable kind, in menu order.
var Crops = []Kind{
	KindGreenApple,
	KindBlueberries,
	KindCherries,
	KindCorn,
	KindGrapes,
	KindLemon,
	KindPeach,
}

// Gameplay constants. Quantities on planted stacks double as growth stage.
const (
	GridSize = 5
	HouseX   = 3
	HouseY   = 3

	MaxStage      = 6 // fully grown, stops advancing
	WaterMaxStage = 5 // watering a crop at stage 5+ is wasted, so it is refused

	SeedPrice      = 10 // coins per seed at the store
	FruitSalePrice = 2  // flat sale price for everything but corn

	WaterCap           = 25   // the watering can never holds more
	CharactersPerWater = 1000 // roleplay characters needed per unit of water
	RoleplayWeight     = 3    // multiplier for in-character channels
)

// WitherAge is how long a planted crop survives without attention, and how
// long a harvested unit keeps in storage before spoiling.
const WitherAge = 72 * time.Hour

// IsCrop reports whether the kind can be planted, grown and sold.
func (k Kind) IsCrop() bool {
	for _, c := range Crops {
		if c == k {
			return true
		}
	}
	return false
}

// ParseCrop validates a user-supplied crop name.
func ParseCrop(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsCrop() {
		return "", fmt.Errorf("unknown crop %q", s)
	}
	return k, nil
}

// Tile addresses one cell of the planting grid. (0,0) is the storage shed.
type Tile struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Storage is the shed tile where harvested units and counters live.
var Storage = Tile{X: 0, Y: 0}

// InGrid reports whether the tile is a plantable grid cell.
func (t Tile) InGrid() bool {
	return t.X >= 1 && t.X <= GridSize && t.Y >= 1 && t.Y <= GridSize
}

// Stack is one inventory row. Harvested crop units are discrete quantity-1
// rows so they can age and trade independently; coins and water are single
// summed counter rows at the storage tile.
type Stack struct {
	ID        int64     `json:"id"`
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Quantity  int       `json:"quantity"`
	Watered   bool      `json:"watered"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InStorage reports whether the stack sits in the shed.
func (s Stack) InStorage() bool {
	return s.X == 0 && s.Y == 0
}

// Planted reports whether the stack is a crop growing on the grid.
func (s Stack) Planted() bool {
	return !s.InStorage() && s.Kind.IsCrop()
}

// Tile returns the stack's grid position.
func (s Stack) Tile() Tile {
	return Tile{X: s.X, Y: s.Y}
}

// Waterable reports whether watering this stack would do anything.
func (s Stack) Waterable() bool {
	return s.Planted() && !s.Watered && s.Quantity < WaterMaxStage
}
