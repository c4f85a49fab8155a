package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/shortlet/internal/domain"
)

// MutateBooking reads the booking, applies fn and writes it back. When a
// concurrent writer got there first the whole read-modify-write is
// repeated, at most attempts times. before is the state fn started from.
func MutateBooking(ctx context.Context, repo BookingRepository, id string, attempts int, fn func(b *domain.Booking) error) (before, after *domain.Booking, err error) {
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		current, err := repo.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		snapshot := *current
		if err := fn(current); err != nil {
			return nil, nil, err
		}
		err = repo.Update(ctx, current)
		if err == nil {
			return &snapshot, current, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || i == attempts-1 {
			return nil, nil, err
		}
	}
	return nil, nil, domain.ErrVersionConflict
}
