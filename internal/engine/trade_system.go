package engine

import (
	"context"
	"errors"

	"github.com/webrender/rphq-bot/internal/domain/garden"
	"github.com/webrender/rphq-bot/internal/domain/trade"
	"github.com/webrender/rphq-bot/internal/events"
	"github.com/webrender/rphq-bot/internal/infra/storage"
	"github.com/webrender/rphq-bot/internal/platform/metrics"
)

// errStaleOffer aborts an accept inside the transaction; the caller then
// purges the offer in its own transaction so the purge survives the abort.
var errStaleOffer = errors.New("stale trade offer")

// TradeSystem owns the peer trade protocol: posting offers, the lazy stock
// re-validation on read, and the atomic two-leg exchange.
type TradeSystem struct {
	engine *Engine
}

func NewTradeSystem(e *Engine) *TradeSystem {
	return &TradeSystem{engine: e}
}

// Propose posts a committed offer, replacing the member's previous one.
// An "all" offered amount binds here, to the poster's stock at commit, so
// the persisted offer always carries a concrete number.
func (s *TradeSystem) Propose(ctx context.Context, offer trade.Offer) (trade.Offer, error) {
	e := s.engine

	if !trade.Tradable(offer.OfferKind) || !trade.Tradable(offer.RequestKind) {
		return trade.Offer{}, ErrInvalidTarget
	}
	if offer.OfferKind == trade.KindNothing && offer.RequestKind == trade.KindNothing {
		return trade.Offer{}, ErrInvalidTarget
	}
	if offer.TargetID == "" || offer.TargetID == offer.UserID {
		return trade.Offer{}, ErrInvalidTarget
	}

	unlock := e.locks.Lock(offer.GuildID, offer.UserID)
	defer unlock()

	offer.CreatedAt = e.now()
	err := e.store.Run(ctx, func(st storage.Stores) error {
		g, err := e.loadGarden(ctx, st.Items, offer.GuildID, offer.UserID)
		if err != nil {
			return err
		}
		if !g.HasHouse() {
			return ErrNotFound
		}
		if offer.OfferKind != trade.KindNothing {
			stock := g.StorageCount(offer.OfferKind)
			n := offer.OfferAmount.Resolve(stock)
			if n < 1 || stock < n {
				return ErrInsufficientFunds
			}
			offer.OfferAmount = trade.AmountOf(n)
		}
		return st.Trades.UpsertOffer(ctx, tradeRecord(offer))
	})
	if err != nil {
		return trade.Offer{}, wrapStore(err)
	}

	e.emit(events.EventTypeTradeOffered, offer.GuildID, offer.UserID, offer.TargetID, offerPayload(offer))
	e.logger.Event("TRADE_OFFERED", offer.UserID, "Offered "+string(offer.OfferKind)+" for "+string(offer.RequestKind))
	return offer, nil
}

// Current returns the member's posted offer, re-validating its stock on the
// way out. An offer the poster can no longer cover is purged and reported
// as gone.
func (s *TradeSystem) Current(ctx context.Context, guildID, userID string) (trade.Offer, error) {
	e := s.engine

	rec, err := e.store.Stores().Trades.GetOffer(ctx, guildID, userID)
	if err != nil {
		return trade.Offer{}, storeErr(err)
	}
	if rec == nil {
		return trade.Offer{}, ErrNotFound
	}
	offer, err := tradeFromRecord(*rec)
	if err != nil {
		return trade.Offer{}, storeErr(err)
	}

	if offer.OfferKind != trade.KindNothing {
		g, err := e.loadGarden(ctx, e.store.Stores().Items, guildID, userID)
		if err != nil {
			return trade.Offer{}, storeErr(err)
		}
		if g.StorageCount(offer.OfferKind) < offer.OfferAmount.N {
			s.purge(ctx, guildID, userID, offer)
			return trade.Offer{}, ErrNotFound
		}
	}
	return offer, nil
}

// Accept settles an offer between its poster and an accepting member. Both
// legs and the offer deletion commit in one transaction; a poster who can
// no longer cover the offered leg gets the offer purged instead.
func (s *TradeSystem) Accept(ctx context.Context, guildID, offerUserID, acceptUserID string) (trade.Offer, error) {
	e := s.engine

	if offerUserID == acceptUserID {
		return trade.Offer{}, ErrInvalidTarget
	}

	unlock := e.locks.LockPair(guildID, offerUserID, acceptUserID)
	defer unlock()

	var settled trade.Offer
	var stale trade.Offer
	err := e.store.Run(ctx, func(st storage.Stores) error {
		rec, err := st.Trades.GetOffer(ctx, guildID, offerUserID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		offer, err := tradeFromRecord(*rec)
		if err != nil {
			return err
		}
		if !offer.OpenTo(acceptUserID) {
			return ErrInvalidTarget
		}

		gOffer, err := e.loadGarden(ctx, st.Items, guildID, offerUserID)
		if err != nil {
			return err
		}
		gAccept, err := e.loadGarden(ctx, st.Items, guildID, acceptUserID)
		if err != nil {
			return err
		}
		if !gOffer.HasHouse() || !gAccept.HasHouse() {
			return ErrNotFound
		}

		// Offered leg: poster -> accepter. The amount was frozen when the
		// offer committed; a poster who dropped below it is stale.
		if offer.OfferKind != trade.KindNothing {
			n := offer.OfferAmount.N
			if n < 1 || gOffer.StorageCount(offer.OfferKind) < n {
				stale = offer
				return errStaleOffer
			}
			if err := s.transferLeg(ctx, st, guildID, offerUserID, acceptUserID, offer.OfferKind, n); err != nil {
				return err
			}
		}

		// Requested leg: accepter -> poster.
		if offer.RequestKind != trade.KindNothing {
			stock := gAccept.StorageCount(offer.RequestKind)
			n := offer.RequestAmount.Resolve(stock)
			if n < 1 || stock < n {
				return ErrInsufficientFunds
			}
			if err := s.transferLeg(ctx, st, guildID, acceptUserID, offerUserID, offer.RequestKind, n); err != nil {
				return err
			}
			offer.RequestAmount = trade.AmountOf(n)
		}

		if err := st.Trades.DeleteOffer(ctx, guildID, offerUserID); err != nil {
			return err
		}
		settled = offer
		return nil
	})
	if errors.Is(err, errStaleOffer) {
		s.purge(ctx, guildID, offerUserID, stale)
		return trade.Offer{}, ErrNotFound
	}
	if err != nil {
		return trade.Offer{}, wrapStore(err)
	}

	e.invalidate(ctx, guildID, offerUserID)
	e.invalidate(ctx, guildID, acceptUserID)
	metrics.Get().RecordOp("trade")
	e.emit(events.EventTypeTradeAccepted, guildID, acceptUserID, offerUserID, offerPayload(settled))
	e.logger.Event("TRADE_ACCEPTED", acceptUserID, "Settled offer from "+offerUserID)
	return settled, nil
}

// transferLeg moves n units of kind between two members. Counter kinds
// adjust the summed rows; crop units reassign the oldest discrete rows so
// trading preserves spoilage age.
func (s *TradeSystem) transferLeg(ctx context.Context, st storage.Stores, guildID, fromUserID, toUserID string, kind garden.Kind, n int) error {
	e := s.engine
	now := e.now()

	if trade.Counter(kind) {
		err := st.Items.SpendCounter(ctx, guildID, fromUserID, string(kind), n, now)
		if err == storage.ErrInsufficient {
			return ErrInsufficientFunds
		}
		if err != nil {
			return err
		}
		if kind == garden.KindWater {
			return st.Items.AddCounterCapped(ctx, guildID, toUserID, string(kind), n, garden.WaterCap, now)
		}
		return st.Items.AddCounter(ctx, guildID, toUserID, string(kind), n, now)
	}

	rows, err := st.Items.OldestStorage(ctx, guildID, fromUserID, string(kind), n)
	if err != nil {
		return err
	}
	if len(rows) < n {
		return ErrInsufficientFunds
	}
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = rows[i].ID
	}
	return st.Items.ReassignOwner(ctx, ids, toUserID, now)
}

// purge deletes a stale offer outside the failed settlement transaction.
func (s *TradeSystem) purge(ctx context.Context, guildID, userID string, offer trade.Offer) {
	e := s.engine
	err := e.store.Run(ctx, func(st storage.Stores) error {
		return st.Trades.DeleteOffer(ctx, guildID, userID)
	})
	if err != nil {
		e.logger.Error("Failed to purge stale trade offer for %s: %v", userID, err)
		return
	}
	e.emit(events.EventTypeTradePurged, guildID, userID, "", offerPayload(offer))
	e.logger.Warn("Purged stale trade offer from %s", userID)
}

func tradeRecord(o trade.Offer) storage.TradeOffer {
	return storage.TradeOffer{
		GuildID:       o.GuildID,
		UserID:        o.UserID,
		TargetID:      o.TargetID,
		OfferKind:     string(o.OfferKind),
		OfferAmount:   o.OfferAmount.String(),
		RequestKind:   string(o.RequestKind),
		RequestAmount: o.RequestAmount.String(),
		CreatedAt:     o.CreatedAt,
	}
}

func tradeFromRecord(rec storage.TradeOffer) (trade.Offer, error) {
	offerAmount, err := parseStoredAmount(rec.OfferAmount)
	if err != nil {
		return trade.Offer{}, err
	}
	requestAmount, err := parseStoredAmount(rec.RequestAmount)
	if err != nil {
		return trade.Offer{}, err
	}
	return trade.Offer{
		GuildID:       rec.GuildID,
		UserID:        rec.UserID,
		TargetID:      rec.TargetID,
		OfferKind:     garden.Kind(rec.OfferKind),
		OfferAmount:   offerAmount,
		RequestKind:   garden.Kind(rec.RequestKind),
		RequestAmount: requestAmount,
		CreatedAt:     rec.CreatedAt,
	}, nil
}

// parseStoredAmount tolerates the zero amount the sentinel legs persist.
func parseStoredAmount(s string) (trade.Amount, error) {
	if s == "0" {
		return trade.AmountOf(0), nil
	}
	return trade.ParseAmount(s)
}

func offerPayload(o trade.Offer) map[string]interface{} {
	return map[string]interface{}{
		"target":         o.TargetID,
		"offer_kind":     string(o.OfferKind),
		"offer_amount":   o.OfferAmount.String(),
		"request_kind":   string(o.RequestKind),
		"request_amount": o.RequestAmount.String(),
	}
}
