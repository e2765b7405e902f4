// README: Publishes order status changes on a Redis channel for live dashboards.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const StatusChannel = "orders:status"

type OrderStatusEvent struct {
	OrderID        string `json:"order_id"`
	VenueID        string `json:"venue_id"`
	CustomerID     string `json:"customer_id"`
	DriverID       string `json:"driver_id,omitempty"`
	Status         string `json:"status"`
	DeliveryStatus string `json:"delivery_status"`
	Timestamp      int64  `json:"timestamp"`
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) PublishStatus(ctx context.Context, ev OrderStatusEvent) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	if err := p.client.Publish(ctx, StatusChannel, msg).Err(); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}

// Subscribe follows the status stream; used by cmd/dashr-bench.
func (p *RedisPublisher) Subscribe(ctx context.Context) *redis.PubSub {
	return p.client.Subscribe(ctx, StatusChannel)
}
