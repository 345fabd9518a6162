package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ride-pooling/internal/models"
)

// Conflict sentinels returned by the conditional booking operations.
// Callers translate these into their own error taxonomy.
var (
	ErrRideNotFound     = errors.New("ride not found")
	ErrRequestNotFound  = errors.New("booking request not found")
	ErrRideClosed       = errors.New("ride is not open")
	ErrDuplicateRequest = errors.New("rider already has a request on this ride")
	ErrAlreadyDecided   = errors.New("booking request already decided")
	ErrCapacityExceeded = errors.New("ride is at capacity")
)

// RideStore defines persistence operations for rides. Booking mutations
// go through the two conditional operations only; there is no raw
// replace, so an in-memory read can never be written back stale.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) (string, error)
	GetRide(ctx context.Context, rideID string) (*models.Ride, error)
	FindByHost(ctx context.Context, hostUserID string) ([]models.Ride, error)
	FindPendingForHost(ctx context.Context, hostUserID string) ([]models.Ride, error)
	FindByRiderMembership(ctx context.Context, riderUserID string) ([]models.Ride, error)

	// AppendBookingRequest atomically adds a pending entry for the rider,
	// provided the ride is open and the rider has no existing entry.
	AppendBookingRequest(ctx context.Context, rideID, riderUserID string) error

	// DecideBookingRequest atomically flips the rider's pending entry to
	// accepted or rejected. An accept checks capacity in the same
	// operation and, when it fills the last seat, moves the ride to
	// booked. Returns the ride after the update.
	DecideBookingRequest(ctx context.Context, rideID, riderUserID string, accept bool) (*models.Ride, error)
}

// MemoryStore keeps rides in a map. All conditional checks run under the
// store mutex, which gives the same atomicity the database backends get
// from filtered updates and row locks.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]*models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride)}
}

func (m *MemoryStore) CreateRide(_ context.Context, r *models.Ride) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = models.NewID()
	}
	if r.Status == "" {
		r.Status = models.RideOpen
	}
	m.rides[r.ID] = cloneRide(r)
	return r.ID, nil
}

func (m *MemoryStore) GetRide(_ context.Context, rideID string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrRideNotFound
	}
	return cloneRide(r), nil
}

func (m *MemoryStore) FindByHost(_ context.Context, hostUserID string) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ride
	for _, r := range m.rides {
		if r.HostUserID == hostUserID {
			out = append(out, *cloneRide(r))
		}
	}
	return out, nil
}

func (m *MemoryStore) FindPendingForHost(_ context.Context, hostUserID string) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ride
	for _, r := range m.rides {
		if r.HostUserID != hostUserID {
			continue
		}
		for _, b := range r.BookedBy {
			if b.Status == models.BookingPending {
				out = append(out, *cloneRide(r))
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) FindByRiderMembership(_ context.Context, riderUserID string) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Ride
	for _, r := range m.rides {
		if _, ok := r.RequestFor(riderUserID); ok {
			out = append(out, *cloneRide(r))
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendBookingRequest(_ context.Context, rideID, riderUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrRideNotFound
	}
	if r.Status != models.RideOpen {
		return ErrRideClosed
	}
	if _, ok := r.RequestFor(riderUserID); ok {
		return ErrDuplicateRequest
	}
	r.BookedBy = append(r.BookedBy, models.BookingRequest{
		RiderUserID: riderUserID,
		Status:      models.BookingPending,
	})
	return nil
}

func (m *MemoryStore) DecideBookingRequest(_ context.Context, rideID, riderUserID string, accept bool) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, ErrRideNotFound
	}
	idx := -1
	for i, b := range r.BookedBy {
		if b.RiderUserID == riderUserID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrRequestNotFound
	}
	if r.BookedBy[idx].Status != models.BookingPending {
		return nil, ErrAlreadyDecided
	}
	if accept {
		if r.Cap > 0 && r.AcceptedCount() >= r.Cap {
			return nil, ErrCapacityExceeded
		}
		r.BookedBy[idx].Status = models.BookingAccepted
		if r.Cap > 0 && r.AcceptedCount() >= r.Cap {
			r.Status = models.RideBooked
		}
	} else {
		r.BookedBy[idx].Status = models.BookingRejected
	}
	return cloneRide(r), nil
}

func cloneRide(r *models.Ride) *models.Ride {
	c := *r
	c.BookedBy = make([]models.BookingRequest, len(r.BookedBy))
	copy(c.BookedBy, r.BookedBy)
	return &c
}
