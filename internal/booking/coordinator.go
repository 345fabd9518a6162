package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-pooling/internal/events"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
	"github.com/example/ride-pooling/internal/storage"
	"github.com/example/ride-pooling/internal/users"
)

// Coordinator owns the booking sub-state of a ride: seat requests,
// host decisions, capacity accounting. All state lives in the Ride
// document; the coordinator never caches it.
type Coordinator struct {
	Store  storage.RideStore
	Users  users.Directory
	Events events.Publisher // optional
	Logger *slog.Logger
}

func NewCoordinator(store storage.RideStore, dir users.Directory, pub events.Publisher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{Store: store, Users: dir, Events: pub, Logger: logger}
}

// RequestSeat appends a pending booking entry for the rider. The
// uniqueness and open-status checks run inside the store's conditional
// update, so concurrent requests cannot race into duplicates.
func (c *Coordinator) RequestSeat(ctx context.Context, rideID string, rider models.Identity) (models.BookingRequest, error) {
	if !models.ValidID(rideID) {
		return models.BookingRequest{}, fmt.Errorf("%w: ride id %q", ErrInvalidArgument, rideID)
	}
	if !models.ValidID(rider.UserID) {
		return models.BookingRequest{}, fmt.Errorf("%w: rider id %q", ErrInvalidArgument, rider.UserID)
	}

	err := c.Store.AppendBookingRequest(ctx, rideID, rider.UserID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrRideNotFound):
		return models.BookingRequest{}, fmt.Errorf("%w: ride %s", ErrNotFound, rideID)
	case errors.Is(err, storage.ErrRideClosed):
		return models.BookingRequest{}, fmt.Errorf("%w: ride %s", ErrRideClosed, rideID)
	case errors.Is(err, storage.ErrDuplicateRequest):
		return models.BookingRequest{}, fmt.Errorf("%w: rider %s on ride %s", ErrDuplicateRequest, rider.UserID, rideID)
	default:
		c.Logger.Error("append booking request failed", "ride_id", rideID, "error", err)
		return models.BookingRequest{}, ErrStorage
	}

	observability.BookingRequestsTotal.Inc()
	c.publish(ctx, rideID, rider.UserID, events.KindRequested)
	return models.BookingRequest{RiderUserID: rider.UserID, Status: models.BookingPending}, nil
}

// Decide flips one pending entry to accepted or rejected. Only the
// ride's host may decide. Accepts are atomic with the capacity check
// and with the ride's own open->booked transition.
func (c *Coordinator) Decide(ctx context.Context, rideID, riderUserID, decision string, actor models.Identity) (*models.Ride, error) {
	if !models.ValidID(rideID) {
		return nil, fmt.Errorf("%w: ride id %q", ErrInvalidArgument, rideID)
	}
	if !models.ValidID(riderUserID) {
		return nil, fmt.Errorf("%w: rider id %q", ErrInvalidArgument, riderUserID)
	}
	var accept bool
	switch models.BookingStatus(decision) {
	case models.BookingAccepted:
		accept = true
	case models.BookingRejected:
	default:
		return nil, fmt.Errorf("%w: decision %q", ErrInvalidArgument, decision)
	}

	// Host check is a plain read: ownership never changes after create.
	ride, err := c.Store.GetRide(ctx, rideID)
	if errors.Is(err, storage.ErrRideNotFound) {
		return nil, fmt.Errorf("%w: ride %s", ErrNotFound, rideID)
	}
	if err != nil {
		c.Logger.Error("get ride failed", "ride_id", rideID, "error", err)
		return nil, ErrStorage
	}
	if ride.HostUserID != actor.UserID {
		return nil, fmt.Errorf("%w: user %s is not the host of ride %s", ErrForbidden, actor.UserID, rideID)
	}

	updated, err := c.Store.DecideBookingRequest(ctx, rideID, riderUserID, accept)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrRideNotFound), errors.Is(err, storage.ErrRequestNotFound):
		return nil, fmt.Errorf("%w: no booking request for rider %s on ride %s", ErrNotFound, riderUserID, rideID)
	case errors.Is(err, storage.ErrAlreadyDecided):
		return nil, fmt.Errorf("%w: rider %s on ride %s", ErrAlreadyDecided, riderUserID, rideID)
	case errors.Is(err, storage.ErrCapacityExceeded):
		return nil, fmt.Errorf("%w: ride %s", ErrCapacityExceeded, rideID)
	default:
		c.Logger.Error("decide booking request failed", "ride_id", rideID, "error", err)
		return nil, ErrStorage
	}

	observability.BookingDecisionsTotal.WithLabelValues(decision).Inc()
	kind := events.KindRejected
	if accept {
		kind = events.KindAccepted
	}
	c.publish(ctx, rideID, riderUserID, kind)
	return updated, nil
}

// ListForRider joins each ride the rider appears on with the host's
// contact details. Read-only; reads the canonical embedded array, so it
// cannot desynchronize from decisions.
func (c *Coordinator) ListForRider(ctx context.Context, riderUserID string) ([]models.BookingSummary, error) {
	if !models.ValidID(riderUserID) {
		return nil, fmt.Errorf("%w: user id %q", ErrInvalidArgument, riderUserID)
	}
	rides, err := c.Store.FindByRiderMembership(ctx, riderUserID)
	if err != nil {
		c.Logger.Error("find rides by rider failed", "rider_id", riderUserID, "error", err)
		return nil, ErrStorage
	}
	out := make([]models.BookingSummary, 0, len(rides))
	for _, r := range rides {
		entry, ok := r.RequestFor(riderUserID)
		if !ok {
			continue
		}
		out = append(out, models.BookingSummary{
			RideID:          r.ID,
			RideName:        r.Name,
			Host:            c.hostContact(ctx, r.HostUserID),
			StartTime:       r.StartTime,
			InitialLocation: r.InitialLocation,
			FinalLocation:   r.FinalLocation,
			Status:          entry.Status,
		})
	}
	return out, nil
}

// hostContact degrades to the raw id when the directory has no record;
// a stale directory must not fail the listing.
func (c *Coordinator) hostContact(ctx context.Context, hostUserID string) models.HostContact {
	if c.Users == nil {
		return models.HostContact{Username: hostUserID}
	}
	u, err := c.Users.Lookup(ctx, hostUserID)
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			c.Logger.Warn("host lookup failed", "host_id", hostUserID, "error", err)
		}
		return models.HostContact{Username: hostUserID}
	}
	return models.HostContact{Username: u.Username, Email: u.Email}
}

func (c *Coordinator) publish(ctx context.Context, rideID, riderUserID string, kind events.Kind) {
	if c.Events == nil {
		return
	}
	ev := events.BookingEvent{
		RideID:      rideID,
		RiderUserID: riderUserID,
		Kind:        kind,
		At:          time.Now(),
	}
	// Best effort enrichment; the event stream is advisory.
	if r, err := c.Store.GetRide(ctx, rideID); err == nil {
		ev.HostUserID = r.HostUserID
	}
	if err := c.Events.PublishBooking(ev); err != nil {
		c.Logger.Warn("booking event publish failed", "ride_id", rideID, "kind", kind, "error", err)
	}
}
