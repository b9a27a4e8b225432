package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers. The bot glue maps these onto user
// facing replies; anything else is an internal failure.
var (
	// ErrNotFound covers missing gardens, missing items and stale trade
	// offers (a stale offer is purged first, then reported as gone).
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds covers any balance that cannot cover a cost:
	// coins, water, or trade goods on the accepting side.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidTarget covers malformed tiles, kinds and trade targets.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrOccupiedTile is returned when planting onto a taken tile.
	ErrOccupiedTile = errors.New("tile already occupied")

	// ErrStoreUnavailable wraps unexpected persistence failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// storeErr wraps an unexpected repository failure so callers can match on
// ErrStoreUnavailable while logs keep the cause.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// domainErr reports whether the error is one of the sentinel outcomes that
// should pass through Run untouched.
func domainErr(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidTarget) ||
		errors.Is(err, ErrOccupiedTile)
}

// wrapStore passes domain errors through and wraps everything else.
func wrapStore(err error) error {
	if err == nil || domainErr(err) {
		return err
	}
	return storeErr(err)
}
