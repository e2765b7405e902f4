// README: Push notifications to FCM topics (user-<id>, venue-<id>, driver-<id>).
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"dashr/internal/types"
)

func UserTopic(id types.ID) string { return "user-" + string(id) }
func VenueTopic(id types.ID) string { return "venue-" + string(id) }
func DriverTopic(id types.ID) string { return "driver-" + string(id) }

type Push struct {
	Topic string
	Title string
	Body  string
	Data  map[string]string
}

type FCMPusher struct {
	client *messaging.Client
}

func NewFCMPusher(client *messaging.Client) *FCMPusher {
	return &FCMPusher{client: client}
}

func (p *FCMPusher) Push(ctx context.Context, push Push) error {
	if _, err := p.client.Send(ctx, buildMessage(push)); err != nil {
		return fmt.Errorf("fcm send %s: %w", push.Topic, err)
	}
	return nil
}

func buildMessage(push Push) *messaging.Message {
	return &messaging.Message{
		Topic: push.Topic,
		Notification: &messaging.Notification{
			Title: push.Title,
			Body:  push.Body,
		},
		Data: push.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
}
