package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/lib/pq"

	"github.com/example/ride-pooling/internal/models"
)

// PostgresStore keeps each ride as one row with the bookedBy array in a
// jsonb column, preserving the single-document ownership model. The
// conditional booking operations take a row lock so check and write
// commit together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) (string, error) {
	if r.ID == "" {
		r.ID = models.NewID()
	}
	if r.Status == "" {
		r.Status = models.RideOpen
	}
	booked := r.BookedBy
	if booked == nil {
		booked = []models.BookingRequest{}
	}
	b, err := json.Marshal(booked)
	if err != nil {
		return "", err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO rides(id, name, email, host_user_id, start_time,
			initial_lat, initial_lng, final_lat, final_lng, cap, status, booked_by)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.Name, r.Email, r.HostUserID, r.StartTime,
		r.InitialLocation.Lat, r.InitialLocation.Lng,
		r.FinalLocation.Lat, r.FinalLocation.Lng,
		r.Cap, r.Status, b)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

const rideColumns = `id, name, email, host_user_id, start_time,
	initial_lat, initial_lng, final_lat, final_lng, cap, status, booked_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(s rowScanner) (*models.Ride, error) {
	var r models.Ride
	var booked []byte
	err := s.Scan(&r.ID, &r.Name, &r.Email, &r.HostUserID, &r.StartTime,
		&r.InitialLocation.Lat, &r.InitialLocation.Lng,
		&r.FinalLocation.Lat, &r.FinalLocation.Lng,
		&r.Cap, &r.Status, &booked)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(booked, &r.BookedBy); err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) GetRide(ctx context.Context, rideID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, rideID)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	return r, err
}

func (p *PostgresStore) FindByHost(ctx context.Context, hostUserID string) ([]models.Ride, error) {
	return p.queryRides(ctx, `SELECT `+rideColumns+` FROM rides WHERE host_user_id=$1`, hostUserID)
}

func (p *PostgresStore) FindPendingForHost(ctx context.Context, hostUserID string) ([]models.Ride, error) {
	return p.queryRides(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE host_user_id=$1
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(booked_by) e
			WHERE e->>'status' = 'pending')`, hostUserID)
}

func (p *PostgresStore) FindByRiderMembership(ctx context.Context, riderUserID string) ([]models.Ride, error) {
	return p.queryRides(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(booked_by) e
			WHERE e->>'riderUserId' = $1)`, riderUserID)
}

func (p *PostgresStore) queryRides(ctx context.Context, query string, args ...any) ([]models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) AppendBookingRequest(ctx context.Context, rideID, riderUserID string) error {
	_, err := p.withRideLock(ctx, rideID, func(r *models.Ride) error {
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
	})
	return err
}

func (p *PostgresStore) DecideBookingRequest(ctx context.Context, rideID, riderUserID string, accept bool) (*models.Ride, error) {
	return p.withRideLock(ctx, rideID, func(r *models.Ride) error {
		idx := -1
		for i, b := range r.BookedBy {
			if b.RiderUserID == riderUserID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrRequestNotFound
		}
		if r.BookedBy[idx].Status != models.BookingPending {
			return ErrAlreadyDecided
		}
		if !accept {
			r.BookedBy[idx].Status = models.BookingRejected
			return nil
		}
		if r.Cap > 0 && r.AcceptedCount() >= r.Cap {
			return ErrCapacityExceeded
		}
		r.BookedBy[idx].Status = models.BookingAccepted
		if r.Cap > 0 && r.AcceptedCount() >= r.Cap {
			r.Status = models.RideBooked
		}
		return nil
	})
}

// withRideLock loads the ride under FOR UPDATE, applies mutate, and
// writes back status and booked_by in the same transaction.
func (p *PostgresStore) withRideLock(ctx context.Context, rideID string, mutate func(*models.Ride) error) (*models.Ride, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1 FOR UPDATE`, rideID)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := mutate(r); err != nil {
		return nil, err
	}
	b, err := json.Marshal(r.BookedBy)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE rides SET status=$1, booked_by=$2 WHERE id=$3`,
		r.Status, b, r.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r, nil
}
