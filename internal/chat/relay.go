package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
	"github.com/example/ride-pooling/internal/storage"
)

// Subscriber receives broadcasts for rooms it has joined.
type Subscriber interface {
	Deliver(roomID string, msg models.Message) error
}

type room struct {
	// mu serializes append+broadcast, which is what gives the per-room
	// total order: no message is delivered out of append order.
	mu   sync.Mutex
	subs map[Subscriber]struct{}
}

// Relay owns per-room subscriber sets and the durable log. A broadcast
// happens only after the append succeeded, so every delivered message
// is durable.
type Relay struct {
	Store  Store
	Rides  storage.RideStore
	Bridge *RedisBridge // optional cross-instance fan-out
	Logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room
}

func NewRelay(store Store, rides storage.RideStore, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{Store: store, Rides: rides, Logger: logger, rooms: make(map[string]*room)}
}

// authorize admits the ride's host and any rider with a booking entry.
// Room ids are ride ids; an unknown room is an unknown ride.
func (r *Relay) authorize(ctx context.Context, roomID string, identity models.Identity) error {
	if !models.ValidID(roomID) {
		return fmt.Errorf("%w: room id %q", booking.ErrInvalidArgument, roomID)
	}
	ride, err := r.Rides.GetRide(ctx, roomID)
	if errors.Is(err, storage.ErrRideNotFound) {
		return fmt.Errorf("%w: room %s", booking.ErrNotFound, roomID)
	}
	if err != nil {
		r.Logger.Error("room authorization read failed", "room_id", roomID, "error", err)
		return booking.ErrStorage
	}
	if ride.HostUserID == identity.UserID {
		return nil
	}
	if _, ok := ride.RequestFor(identity.UserID); ok {
		return nil
	}
	return fmt.Errorf("%w: user %s has no seat on ride %s", booking.ErrForbidden, identity.UserID, roomID)
}

// Join subscribes sub to the room's broadcasts. No history is replayed;
// a rejoining client sees only messages sent after the join.
func (r *Relay) Join(ctx context.Context, roomID string, identity models.Identity, sub Subscriber) error {
	if err := r.authorize(ctx, roomID, identity); err != nil {
		return err
	}
	rm := r.room(roomID)
	rm.mu.Lock()
	rm.subs[sub] = struct{}{}
	rm.mu.Unlock()
	return nil
}

// Drop removes the subscriber from every room. Called on disconnect.
func (r *Relay) Drop(sub Subscriber) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rm := range r.rooms {
		rm.mu.Lock()
		delete(rm.subs, sub)
		rm.mu.Unlock()
	}
}

// Send appends the message to the room's log and, on success only,
// broadcasts it to every current subscriber including the sender's own
// connection.
func (r *Relay) Send(ctx context.Context, roomID string, sender models.Identity, text string) (models.Message, error) {
	if !models.ValidID(roomID) {
		return models.Message{}, fmt.Errorf("%w: room id %q", booking.ErrInvalidArgument, roomID)
	}
	if !models.ValidID(sender.UserID) {
		return models.Message{}, fmt.Errorf("%w: sender id %q", booking.ErrInvalidArgument, sender.UserID)
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, fmt.Errorf("%w: empty message text", booking.ErrInvalidArgument)
	}

	rm := r.room(roomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	msg := models.Message{Sender: sender.UserID, Text: text, Timestamp: time.Now().UTC()}
	if err := r.Store.Append(ctx, roomID, msg); err != nil {
		r.Logger.Error("chat append failed", "room_id", roomID, "error", err)
		return models.Message{}, booking.ErrStorage
	}
	observability.ChatMessagesTotal.Inc()

	r.broadcastLocked(rm, roomID, msg)
	if r.Bridge != nil {
		if err := r.Bridge.Publish(ctx, roomID, msg); err != nil {
			r.Logger.Warn("chat bridge publish failed", "room_id", roomID, "error", err)
		}
	}
	return msg, nil
}

// History returns the persisted log, under the same authorization rule
// as Join.
func (r *Relay) History(ctx context.Context, roomID string, identity models.Identity) ([]models.Message, error) {
	if err := r.authorize(ctx, roomID, identity); err != nil {
		return nil, err
	}
	log, err := r.Store.History(ctx, roomID)
	if err != nil {
		r.Logger.Error("chat history read failed", "room_id", roomID, "error", err)
		return nil, booking.ErrStorage
	}
	return log, nil
}

func (r *Relay) room(roomID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{subs: make(map[Subscriber]struct{})}
		r.rooms[roomID] = rm
	}
	return rm
}

func (r *Relay) broadcastLocked(rm *room, roomID string, msg models.Message) {
	for sub := range rm.subs {
		if err := sub.Deliver(roomID, msg); err != nil {
			observability.ChatBroadcastErrors.Inc()
			r.Logger.Warn("chat delivery failed", "room_id", roomID, "error", err)
		}
	}
}

// deliverRemote feeds a bridge-originated message to local subscribers.
// The message was already appended by the instance that accepted it.
func (r *Relay) deliverRemote(roomID string, msg models.Message) {
	rm := r.room(roomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	r.broadcastLocked(rm, roomID, msg)
}
