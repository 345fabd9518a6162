package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/storage"
	"github.com/example/ride-pooling/internal/users"
)

// Projector derives the host notification feed from ride state on every
// call. Nothing is persisted and nothing is marked read; a decided
// request simply stops appearing.
type Projector struct {
	Store  storage.RideStore
	Users  users.Directory
	Logger *slog.Logger
}

func NewProjector(store storage.RideStore, dir users.Directory, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{Store: store, Users: dir, Logger: logger}
}

// Pending returns one view per pending booking request across the
// host's rides, in ride order then arrival order.
func (p *Projector) Pending(ctx context.Context, hostUserID string) ([]models.NotificationView, error) {
	if !models.ValidID(hostUserID) {
		return nil, fmt.Errorf("%w: user id %q", booking.ErrInvalidArgument, hostUserID)
	}
	rides, err := p.Store.FindPendingForHost(ctx, hostUserID)
	if err != nil {
		p.Logger.Error("find pending rides failed", "host_id", hostUserID, "error", err)
		return nil, booking.ErrStorage
	}
	out := make([]models.NotificationView, 0)
	for _, r := range rides {
		for _, b := range r.BookedBy {
			if b.Status != models.BookingPending {
				continue
			}
			name := p.requesterName(ctx, b.RiderUserID)
			out = append(out, models.NotificationView{
				Text:          fmt.Sprintf("You have a new ride request from %s for the ride %q.", name, r.Name),
				RideID:        r.ID,
				RequesterID:   b.RiderUserID,
				RideName:      r.Name,
				RequesterName: name,
				CreatedAt:     r.StartTime,
			})
		}
	}
	return out, nil
}

// requesterName falls back to the raw id; a directory gap must not hide
// a pending request from the host.
func (p *Projector) requesterName(ctx context.Context, riderUserID string) string {
	if p.Users == nil {
		return riderUserID
	}
	u, err := p.Users.Lookup(ctx, riderUserID)
	if err != nil {
		return riderUserID
	}
	return u.Username
}
