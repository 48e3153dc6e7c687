package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const updatesChannel = "pairquiz:updates"

type updateNotice struct {
	Origin string `json:"origin"`
	GameID string `json:"gameId"`
}

// GameUpdateBus implements app.UpdateBus over Redis pub/sub.
// Notices carry the publishing replica's origin id so a replica ignores its own announcements.
type GameUpdateBus struct {
	client *redis.Client
	origin string
}

func NewGameUpdateBus(client *redis.Client) *GameUpdateBus {
	return &GameUpdateBus{client: client, origin: uuid.NewString()}
}

func (b *GameUpdateBus) Announce(ctx context.Context, gameID string) error {
	data, err := json.Marshal(updateNotice{Origin: b.origin, GameID: gameID})
	if err != nil {
		return fmt.Errorf("encode update notice: %w", err)
	}
	return b.client.Publish(ctx, updatesChannel, data).Err()
}

func (b *GameUpdateBus) Listen(ctx context.Context, deliver func(gameID string)) error {
	sub := b.client.Subscribe(ctx, updatesChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to game updates: %w", err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var notice updateNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				continue
			}
			if notice.Origin == b.origin {
				continue
			}
			deliver(notice.GameID)
		}
	}
}
