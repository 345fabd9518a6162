package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pooling/internal/models"
)

const bridgePrefix = "chat:room:"

// RedisBridge fans broadcasts out across server instances over pub/sub.
// Each instance tags what it publishes with its own origin id and skips
// those on the way back in, since local delivery already happened.
type RedisBridge struct {
	client *redis.Client
	origin string
	logger *slog.Logger
}

type bridgeFrame struct {
	Origin  string         `json:"origin"`
	RoomID  string         `json:"room_id"`
	Message models.Message `json:"message"`
}

func NewRedisBridge(addr, password string, logger *slog.Logger) *RedisBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		origin: models.NewID(),
		logger: logger,
	}
}

func (b *RedisBridge) Publish(ctx context.Context, roomID string, msg models.Message) error {
	payload, err := json.Marshal(bridgeFrame{Origin: b.origin, RoomID: roomID, Message: msg})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, bridgePrefix+roomID, payload).Err()
}

// Run consumes remote-origin messages until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context, relay *Relay) {
	sub := b.client.PSubscribe(ctx, bridgePrefix+"*")
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var frame bridgeFrame
			if err := json.Unmarshal([]byte(m.Payload), &frame); err != nil {
				b.logger.Warn("chat bridge frame decode failed", "error", err)
				continue
			}
			if frame.Origin == b.origin {
				continue
			}
			roomID := frame.RoomID
			if roomID == "" {
				roomID = strings.TrimPrefix(m.Channel, bridgePrefix)
			}
			relay.deliverRemote(roomID, frame.Message)
		}
	}
}

func (b *RedisBridge) Close() error { return b.client.Close() }
