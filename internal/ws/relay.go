package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

const relayChannel = "match_events"

// Relay carries per-player events between processes over Redis pub/sub. A
// publisher only reaches for the relay when the target player has no local
// connection; subscribers only deliver locally, so frames never loop.
type Relay struct {
	rdb *redis.Client
	hub *Hub
}

type relayFrame struct {
	PlayerID string          `json:"playerId"`
	Payload  json.RawMessage `json:"payload"`
}

func NewRelay(rdb *redis.Client, hub *Hub) *Relay {
	r := &Relay{rdb: rdb, hub: hub}
	hub.relay = r
	return r
}

// Publish hands an already-marshaled event envelope to whichever process
// holds the player's connection.
func (r *Relay) Publish(playerID string, payload []byte) {
	frame, err := json.Marshal(relayFrame{PlayerID: playerID, Payload: payload})
	if err != nil {
		log.Printf("[WS] relay marshal for %s: %v", playerID, err)
		return
	}
	if err := r.rdb.Publish(context.Background(), relayChannel, frame).Err(); err != nil {
		log.Printf("[WS] relay publish for %s: %v", playerID, err)
	}
}

// Start subscribes to the relay channel and delivers frames addressed to
// locally connected players. Runs until the context is cancelled.
func (r *Relay) Start(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, relayChannel)
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		log.Printf("[WS] relay subscriber started on %q", relayChannel)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var frame relayFrame
				if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
					log.Printf("[WS] relay: invalid frame: %v", err)
					continue
				}
				r.hub.deliverLocal(frame.PlayerID, frame.Payload)
			}
		}
	}()
}
