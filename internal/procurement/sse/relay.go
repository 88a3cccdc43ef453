package sse

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RelayChannel is the Redis Pub/Sub channel shared by every API instance.
const RelayChannel = "siteproc:realtime"

// Relay fans events out through Redis so clients connected to any instance
// receive them. Each instance publishes only; delivery to local clients
// happens when the instance's own subscription reads the message back.
type Relay struct {
	hub    *Hub
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRelay creates a Redis backed relay in front of hub
func NewRelay(hub *Hub, rdb *redis.Client, logger *zap.Logger) *Relay {
	return &Relay{hub: hub, rdb: rdb, logger: logger}
}

// Broadcast publishes payload as event on a company channel
func (r *Relay) Broadcast(companyID, channel, event string, payload interface{}) {
	r.publish(NewEvent(companyID, channel, event, payload))
}

// BroadcastDashboardUpdated tells every client of the company to refresh dashboard figures
func (r *Relay) BroadcastDashboardUpdated(companyID string) {
	r.Broadcast(companyID, CompanyChannel(companyID), EventDashboardUpdated, map[string]string{"company_id": companyID})
}

func (r *Relay) publish(event Event) {
	data, err := json.Marshal(event)
	if err == nil {
		err = r.rdb.Publish(context.Background(), RelayChannel, data).Err()
	}
	if err != nil {
		// Redis 不可用时退化为本机投递
		r.logger.Warn("realtime relay publish failed, delivering locally", zap.Error(err))
		r.hub.Deliver(event)
	}
}

// Run subscribes to the relay channel and delivers every message to the
// local hub until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, RelayChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("Realtime relay subscribed", zap.String("channel", RelayChannel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("realtime relay dropped malformed message", zap.Error(err))
				continue
			}
			r.hub.Deliver(event)
		}
	}
}
