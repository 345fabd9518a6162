package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/storage"
	"github.com/example/ride-pooling/internal/users"
)

func setup(t *testing.T) (*Projector, *storage.MemoryStore, *users.MemoryDirectory, string) {
	t.Helper()
	store := storage.NewMemoryStore()
	dir := users.NewMemoryDirectory()
	host := models.NewID()
	return NewProjector(store, dir, nil), store, dir, host
}

func TestPendingValidatesID(t *testing.T) {
	p, _, _, _ := setup(t)
	if _, err := p.Pending(context.Background(), "zzz"); !errors.Is(err, booking.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestPendingDerivesOneViewPerPendingEntry(t *testing.T) {
	p, store, dir, host := setup(t)
	ctx := context.Background()
	start := time.Date(2026, 9, 2, 7, 30, 0, 0, time.UTC)
	rideID, err := store.CreateRide(ctx, &models.Ride{
		Name:       "morning commute",
		HostUserID: host,
		StartTime:  start,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	riderA, riderB := models.NewID(), models.NewID()
	dir.Add(models.User{ID: riderA, Username: "ana"})
	for _, rid := range []string{riderA, riderB} {
		if err := store.AppendBookingRequest(ctx, rideID, rid); err != nil {
			t.Fatalf("request: %v", err)
		}
	}

	views, err := p.Pending(ctx, host)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	v := views[0]
	if v.RideID != rideID || v.RideName != "morning commute" || !v.CreatedAt.Equal(start) {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.RequesterName != "ana" {
		t.Fatalf("expected directory name, got %q", v.RequesterName)
	}
	want := `You have a new ride request from ana for the ride "morning commute".`
	if v.Text != want {
		t.Fatalf("text %q, want %q", v.Text, want)
	}
	// Directory gap: falls back to the raw id.
	if views[1].RequesterName != riderB {
		t.Fatalf("expected raw id fallback, got %q", views[1].RequesterName)
	}
}

func TestPendingDisappearsAfterDecision(t *testing.T) {
	p, store, _, host := setup(t)
	ctx := context.Background()
	rideID, _ := store.CreateRide(ctx, &models.Ride{Name: "r", HostUserID: host, StartTime: time.Now()})
	rider := models.NewID()
	if err := store.AppendBookingRequest(ctx, rideID, rider); err != nil {
		t.Fatalf("request: %v", err)
	}

	before, _ := p.Pending(ctx, host)
	if len(before) != 1 {
		t.Fatalf("expected 1 pending view, got %d", len(before))
	}
	// Idempotent: a second read with no writes in between is identical.
	again, _ := p.Pending(ctx, host)
	if len(again) != 1 || again[0] != before[0] {
		t.Fatalf("projection not stable: %+v vs %+v", again, before)
	}

	if _, err := store.DecideBookingRequest(ctx, rideID, rider, true); err != nil {
		t.Fatalf("decide: %v", err)
	}
	after, _ := p.Pending(ctx, host)
	if len(after) != 0 {
		t.Fatalf("expected empty feed after decision, got %+v", after)
	}
}

func TestPendingIgnoresOtherHosts(t *testing.T) {
	p, store, _, host := setup(t)
	ctx := context.Background()
	otherHost := models.NewID()
	otherRide, _ := store.CreateRide(ctx, &models.Ride{Name: "other", HostUserID: otherHost, StartTime: time.Now()})
	if err := store.AppendBookingRequest(ctx, otherRide, models.NewID()); err != nil {
		t.Fatalf("request: %v", err)
	}
	views, err := p.Pending(ctx, host)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("expected no views for %s, got %+v", host, views)
	}
}
