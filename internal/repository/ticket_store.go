package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"CopyFabric/internal/domain/repository"
	"CopyFabric/pkg/coord"
)

// CoordTicketStore implements TicketStore on the coordination store.
type CoordTicketStore struct {
	store coord.Store
	ttl   time.Duration
}

// NewCoordTicketStore keeps ticket mappings for ttl; zero means the 30 day default.
func NewCoordTicketStore(store coord.Store, ttl time.Duration) *CoordTicketStore {
	if ttl <= 0 {
		ttl = coord.TicketMapTTL
	}
	return &CoordTicketStore{store: store, ttl: ttl}
}

func (s *CoordTicketStore) FollowerTicket(ctx context.Context, masterTicket int64, followerID string) (int64, bool, error) {
	v, err := s.store.Get(ctx, coord.TicketKey(masterTicket, followerID))
	if errors.Is(err, coord.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get ticket map: %w", err)
	}
	ticket, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("ticket map value %q: %w", v, err)
	}
	return ticket, true, nil
}

func (s *CoordTicketStore) SaveFollowerTicket(ctx context.Context, masterTicket int64, followerID string, followerTicket int64) error {
	key := coord.TicketKey(masterTicket, followerID)
	if err := s.store.Set(ctx, key, strconv.FormatInt(followerTicket, 10), s.ttl); err != nil {
		return fmt.Errorf("set ticket map: %w", err)
	}
	return nil
}

func (s *CoordTicketStore) IsClosed(ctx context.Context, masterID string, masterTicket int64) (bool, error) {
	ok, err := s.store.SIsMember(ctx, coord.ClosedSetKey(masterID), strconv.FormatInt(masterTicket, 10))
	if err != nil {
		return false, fmt.Errorf("closed set lookup: %w", err)
	}
	return ok, nil
}

func (s *CoordTicketStore) MarkClosed(ctx context.Context, masterID string, masterTicket int64) error {
	if err := s.store.SAdd(ctx, coord.ClosedSetKey(masterID), strconv.FormatInt(masterTicket, 10)); err != nil {
		return fmt.Errorf("closed set add: %w", err)
	}
	return nil
}

var _ repository.TicketStore = (*CoordTicketStore)(nil)
