// Package trade holds the peer trade offer and the draft state machine the
// bot walks a member through before an offer is committed.
// This package is PURE and must NOT import any infrastructure packages.
package trade

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/webrender/rphq-bot/internal/domain/garden"
)

// TargetAnyone opens the offer to the whole guild.
const TargetAnyone = "all"

// KindNothing is the sentinel for a one-sided trade leg (a gift).
const KindNothing garden.Kind = "nothing"

// ErrBadStep is returned when a draft transition is attempted out of order.
var ErrBadStep = errors.New("trade draft step out of order")

// Amount is a trade quantity. All resolves against the holder's stock when
// the leg binds: the offered leg when the offer commits, so corn harvested
// between choosing "all" and committing still counts, and the requested leg
// when the trade settles.
type Amount struct {
	All bool `json:"all"`
	N   int  `json:"n"`
}

// AmountAll returns the unresolved "everything I have" amount.
func AmountAll() Amount {
	return Amount{All: true}
}

// AmountOf returns a fixed amount.
func AmountOf(n int) Amount {
	return Amount{N: n}
}

// Resolve binds the amount against the holder's current stock.
func (a Amount) Resolve(stock int) int {
	if a.All {
		return stock
	}
	return a.N
}

// String renders the amount for persistence and menus.
func (a Amount) String() string {
	if a.All {
		return TargetAnyone
	}
	return strconv.Itoa(a.N)
}

// ParseAmount reads an amount back from its string form.
func ParseAmount(s string) (Amount, error) {
	if s == TargetAnyone {
		return AmountAll(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return Amount{}, fmt.Errorf("invalid trade amount %q", s)
	}
	return AmountOf(n), nil
}

// Offer is a posted trade. One offer per (guild, user); posting again
// overwrites the previous one.
type Offer struct {
	GuildID       string      `json:"guild_id"`
	UserID        string      `json:"user_id"`
	TargetID      string      `json:"target_id"` // TargetAnyone or a user id
	OfferKind     garden.Kind `json:"offer_kind"`
	OfferAmount   Amount      `json:"offer_amount"`
	RequestKind   garden.Kind `json:"request_kind"`
	RequestAmount Amount      `json:"request_amount"`
	CreatedAt     time.Time   `json:"created_at"`
}

// OpenTo reports whether the given user may accept this offer.
func (o Offer) OpenTo(userID string) bool {
	return o.TargetID == TargetAnyone || o.TargetID == userID
}

// Tradable reports whether a kind may appear on a trade leg. Houses stay
// put; everything else, including the sentinel, is fair game.
func Tradable(k garden.Kind) bool {
	return k != garden.KindHouse && (k == KindNothing || k == garden.KindCoins || k == garden.KindWater || k.IsCrop())
}

// Counter reports whether a kind transfers by adjusting summed counter rows
// instead of reassigning discrete units.
func Counter(k garden.Kind) bool {
	return k == garden.KindCoins || k == garden.KindWater
}

// quantityLadder is the preset amounts offered in quantity menus.
var quantityLadder = []int{1, 2, 3, 4, 5, 10, 20, 40}

// QuantityChoices returns the menu of amounts for a kind given current
// stock. Coin steps are ten times larger. "All" is always appended last.
func QuantityChoices(kind garden.Kind, stock int) []Amount {
	scale := 1
	if kind == garden.KindCoins {
		scale = 10
	}
	var out []Amount
	for _, n := range quantityLadder {
		if n*scale <= stock {
			out = append(out, AmountOf(n*scale))
		}
	}
	out = append(out, AmountAll())
	return out
}

// Step tracks how far a draft has progressed.
type Step int

const (
	StepChoosingTarget Step = iota
	StepChoosingOfferedItem
	StepChoosingOfferedAmount
	StepChoosingRequestedItem
	StepChoosingRequestedAmount
	StepCommitted
)

// Draft is an offer under construction. Transitions must happen in order;
// a transition from the wrong step returns ErrBadStep.
type Draft struct {
	Offer
	Step Step
}

// NewDraft starts a draft for one member.
func NewDraft(guildID, userID string) *Draft {
	return &Draft{
		Offer: Offer{GuildID: guildID, UserID: userID},
		Step:  StepChoosingTarget,
	}
}

// ChooseTarget records who may accept the offer.
func (d *Draft) ChooseTarget(targetID string) error {
	if d.Step != StepChoosingTarget {
		return ErrBadStep
	}
	if targetID == "" || targetID == d.UserID {
		return fmt.Errorf("invalid trade target %q", targetID)
	}
	d.TargetID = targetID
	d.Step = StepChoosingOfferedItem
	return nil
}

// ChooseOffered records what the poster gives away.
func (d *Draft) ChooseOffered(kind garden.Kind) error {
	if d.Step != StepChoosingOfferedItem {
		return ErrBadStep
	}
	if !Tradable(kind) {
		return fmt.Errorf("kind %q cannot be traded", kind)
	}
	d.OfferKind = kind
	if kind == KindNothing {
		// Nothing has no amount to choose.
		d.OfferAmount = AmountOf(0)
		d.Step = StepChoosingRequestedItem
		return nil
	}
	d.Step = StepChoosingOfferedAmount
	return nil
}

// ChooseOfferedAmount records how much the poster gives away.
func (d *Draft) ChooseOfferedAmount(a Amount) error {
	if d.Step != StepChoosingOfferedAmount {
		return ErrBadStep
	}
	if !a.All && a.N < 1 {
		return fmt.Errorf("invalid trade amount %d", a.N)
	}
	d.OfferAmount = a
	d.Step = StepChoosingRequestedItem
	return nil
}

// ChooseRequested records what the poster wants back.
func (d *Draft) ChooseRequested(kind garden.Kind) error {
	if d.Step != StepChoosingRequestedItem {
		return ErrBadStep
	}
	if !Tradable(kind) {
		return fmt.Errorf("kind %q cannot be traded", kind)
	}
	if kind == KindNothing && d.OfferKind == KindNothing {
		return errors.New("trade must move something")
	}
	d.RequestKind = kind
	if kind == KindNothing {
		d.RequestAmount = AmountOf(0)
		d.Step = StepCommitted
		return nil
	}
	d.Step = StepChoosingRequestedAmount
	return nil
}

// ChooseRequestedAmount records how much the poster wants back and
// completes the draft.
func (d *Draft) ChooseRequestedAmount(a Amount) error {
	if d.Step != StepChoosingRequestedAmount {
		return ErrBadStep
	}
	if !a.All && a.N < 1 {
		return fmt.Errorf("invalid trade amount %d", a.N)
	}
	d.RequestAmount = a
	d.Step = StepCommitted
	return nil
}

// Committed reports whether the draft is ready to post.
func (d *Draft) Committed() bool {
	return d.Step == StepCommitted
}
