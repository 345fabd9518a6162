package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/storage"
)

// recorder collects deliveries in arrival order.
type recorder struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (r *recorder) Deliver(_ string, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Text
	}
	return out
}

// failStore refuses every append.
type failStore struct{}

func (failStore) Append(context.Context, string, models.Message) error {
	return errors.New("disk on fire")
}
func (failStore) History(context.Context, string) ([]models.Message, error) {
	return nil, errors.New("disk on fire")
}

func setupRelay(t *testing.T) (*Relay, *storage.MemoryStore, string, models.Identity, models.Identity) {
	t.Helper()
	rides := storage.NewMemoryStore()
	host := models.Identity{UserID: models.NewID()}
	rider := models.Identity{UserID: models.NewID()}
	rideID, err := rides.CreateRide(context.Background(), &models.Ride{
		Name:       "chatty ride",
		HostUserID: host.UserID,
		StartTime:  time.Now(),
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	if err := rides.AppendBookingRequest(context.Background(), rideID, rider.UserID); err != nil {
		t.Fatalf("request: %v", err)
	}
	return NewRelay(NewMemoryStore(), rides, nil), rides, rideID, host, rider
}

func TestJoinAuthorization(t *testing.T) {
	relay, _, roomID, host, rider := setupRelay(t)
	ctx := context.Background()
	sub := &recorder{}

	if err := relay.Join(ctx, roomID, host, sub); err != nil {
		t.Fatalf("host join: %v", err)
	}
	if err := relay.Join(ctx, roomID, rider, sub); err != nil {
		t.Fatalf("rider join: %v", err)
	}
	stranger := models.Identity{UserID: models.NewID()}
	if err := relay.Join(ctx, roomID, stranger, sub); !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
	if err := relay.Join(ctx, models.NewID(), host, sub); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown room, got %v", err)
	}
	if err := relay.Join(ctx, "not-hex", host, sub); !errors.Is(err, booking.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSendAppendsThenBroadcasts(t *testing.T) {
	relay, _, roomID, host, rider := setupRelay(t)
	ctx := context.Background()
	hostSub, riderSub := &recorder{}, &recorder{}
	if err := relay.Join(ctx, roomID, host, hostSub); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := relay.Join(ctx, roomID, rider, riderSub); err != nil {
		t.Fatalf("join: %v", err)
	}

	msg, err := relay.Send(ctx, roomID, rider, "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Sender != rider.UserID || msg.Text != "hi" || msg.Timestamp.IsZero() {
		t.Fatalf("unexpected message %+v", msg)
	}

	// Both connections, including the sender's, got the broadcast.
	for _, sub := range []*recorder{hostSub, riderSub} {
		got := sub.texts()
		if len(got) != 1 || got[0] != "hi" {
			t.Fatalf("expected [hi], got %v", got)
		}
	}

	log, err := relay.Store.History(ctx, roomID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(log) != 1 || log[0].Text != "hi" {
		t.Fatalf("expected exactly one persisted message, got %v", log)
	}
}

func TestSendOrderPreserved(t *testing.T) {
	relay, _, roomID, host, _ := setupRelay(t)
	ctx := context.Background()
	sub := &recorder{}
	if err := relay.Join(ctx, roomID, host, sub); err != nil {
		t.Fatalf("join: %v", err)
	}

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := relay.Send(ctx, roomID, host, fmt.Sprintf("m%d", i)); err != nil {
				t.Errorf("send: %v", err)
			}
		}(i)
	}
	wg.Wait()

	log, _ := relay.Store.History(ctx, roomID)
	got := sub.texts()
	if len(got) != n || len(log) != n {
		t.Fatalf("expected %d deliveries and %d log entries, got %d / %d", n, n, len(got), len(log))
	}
	// Delivery order matches append order.
	for i := range log {
		if log[i].Text != got[i] {
			t.Fatalf("order diverged at %d: log=%s delivered=%s", i, log[i].Text, got[i])
		}
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	relay, rides, roomID, host, _ := setupRelay(t)
	ctx := context.Background()

	otherHost := models.Identity{UserID: models.NewID()}
	otherRoom, err := rides.CreateRide(ctx, &models.Ride{
		Name:       "other ride",
		HostUserID: otherHost.UserID,
		StartTime:  time.Now(),
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}

	subA, subB := &recorder{}, &recorder{}
	if err := relay.Join(ctx, roomID, host, subA); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := relay.Join(ctx, otherRoom, otherHost, subB); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := relay.Send(ctx, roomID, host, "secret"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := subB.texts(); len(got) != 0 {
		t.Fatalf("cross-room leak: %v", got)
	}
	if got := subA.texts(); len(got) != 1 {
		t.Fatalf("expected delivery in own room, got %v", got)
	}
}

func TestBroadcastGatedOnDurableAppend(t *testing.T) {
	rides := storage.NewMemoryStore()
	host := models.Identity{UserID: models.NewID()}
	roomID, err := rides.CreateRide(context.Background(), &models.Ride{
		Name:       "doomed",
		HostUserID: host.UserID,
		StartTime:  time.Now(),
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	relay := NewRelay(failStore{}, rides, nil)
	ctx := context.Background()
	sub := &recorder{}
	if err := relay.Join(ctx, roomID, host, sub); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := relay.Send(ctx, roomID, host, "lost?"); !errors.Is(err, booking.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if got := sub.texts(); len(got) != 0 {
		t.Fatalf("broadcast happened despite failed append: %v", got)
	}
}

func TestDropUnsubscribes(t *testing.T) {
	relay, _, roomID, host, _ := setupRelay(t)
	ctx := context.Background()
	sub := &recorder{}
	if err := relay.Join(ctx, roomID, host, sub); err != nil {
		t.Fatalf("join: %v", err)
	}
	relay.Drop(sub)
	if _, err := relay.Send(ctx, roomID, host, "after drop"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := sub.texts(); len(got) != 0 {
		t.Fatalf("dropped subscriber still receiving: %v", got)
	}
	// No replay on rejoin: only new messages arrive.
	if err := relay.Join(ctx, roomID, host, sub); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if _, err := relay.Send(ctx, roomID, host, "fresh"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := sub.texts(); len(got) != 1 || got[0] != "fresh" {
		t.Fatalf("expected only the post-rejoin message, got %v", got)
	}
}

func TestSendValidation(t *testing.T) {
	relay, _, roomID, host, _ := setupRelay(t)
	ctx := context.Background()
	if _, err := relay.Send(ctx, "bad", host, "x"); !errors.Is(err, booking.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for room, got %v", err)
	}
	if _, err := relay.Send(ctx, roomID, models.Identity{UserID: "bad"}, "x"); !errors.Is(err, booking.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for sender, got %v", err)
	}
	if _, err := relay.Send(ctx, roomID, host, "   "); !errors.Is(err, booking.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty text, got %v", err)
	}
}

func TestHistoryAuthorization(t *testing.T) {
	relay, _, roomID, host, _ := setupRelay(t)
	ctx := context.Background()
	if _, err := relay.Send(ctx, roomID, host, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	log, err := relay.History(ctx, roomID, host)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(log) != 1 || log[0].Text != "hello" {
		t.Fatalf("unexpected history %v", log)
	}
	stranger := models.Identity{UserID: models.NewID()}
	if _, err := relay.History(ctx, roomID, stranger); !errors.Is(err, booking.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
