// Package geocode turns a place name into map coordinates.
package geocode

import (
	"context"
	"fmt"
	"strings"

	"concertmap/internal/geo"
	appLog "concertmap/internal/log"
)

// Provider statuses carried by Error.
const (
	StatusZeroResults     = "ZERO_RESULTS"
	StatusInvalidRequest  = "INVALID_REQUEST"
	StatusInvalidResponse = "INVALID_RESPONSE"
	StatusRequestFailed   = "REQUEST_FAILED"
)

// Geocoder resolves an address.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Position, error)
}

// Error is a failed lookup. Status is one of the Status constants or the
// provider's HTTP status line.
type Error struct {
	Address string
	Status  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geocode %q: %s: %v", e.Address, e.Status, e.Err)
	}
	return fmt.Sprintf("geocode %q: %s", e.Address, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Normalize is the cache key for an address: lower case, single spaces.
func Normalize(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// Store is a persistent address cache.
type Store interface {
	Get(ctx context.Context, key string) (geo.Position, bool, error)
	Put(ctx context.Context, key, address string, pos geo.Position) error
}

// Cached consults a Store before the wrapped Geocoder and remembers every
// successful answer. Store failures are logged and otherwise ignored.
type Cached struct {
	inner Geocoder
	store Store
}

// NewCached wraps inner. A nil store disables caching.
func NewCached(inner Geocoder, store Store) *Cached {
	return &Cached{inner: inner, store: store}
}

func (c *Cached) Geocode(ctx context.Context, address string) (geo.Position, error) {
	key := Normalize(address)
	if key == "" {
		return geo.Position{}, &Error{Address: address, Status: StatusInvalidRequest}
	}

	if c.store != nil {
		pos, ok, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			appLog.Warn("geocode cache read failed", "address", address, "err", err)
		case ok:
			appLog.Debug("geocode cache hit", "address", address)
			return pos, nil
		}
	}

	pos, err := c.inner.Geocode(ctx, address)
	if err != nil {
		return geo.Position{}, err
	}

	if c.store != nil {
		if err := c.store.Put(ctx, key, address, pos); err != nil {
			appLog.Warn("geocode cache write failed", "address", address, "err", err)
		}
	}
	return pos, nil
}
