package attendance

import (
	"errors"
	"time"
)

// Service implements scan recording, the user and subject registries, the
// subject context and the reporting queries on top of a Store.
type Service struct {
	store     Store
	selection SelectionStore
	loc       *time.Location
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocation sets the location used for calendar windows and for
// timestamps that carry no offset. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a service. The selection store may be the same value
// as the store when the backend keeps the slot itself.
func NewService(store Store, selection SelectionStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		selection: selection,
		loc:       time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the location calendar windows are computed in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// mapNotFound turns a store level ErrNotFound into a client facing error.
func mapNotFound(err error, what string) error {
	if errors.Is(err, ErrNotFound) {
		return notFound(what)
	}
	return err
}
