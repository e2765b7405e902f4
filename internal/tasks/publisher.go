// README: Publisher wraps payloads in a Task envelope and puts them on the queue.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Publisher struct {
	queue Queue
	now   func() time.Time
}

func NewPublisher(queue Queue) *Publisher {
	return &Publisher{queue: queue, now: time.Now}
}

func (p *Publisher) Enqueue(ctx context.Context, typ Type, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", typ, err)
	}
	body, err := json.Marshal(Task{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   raw,
		CreatedAt: p.now().UTC(),
	})
	if err != nil {
		return err
	}
	if _, err := p.queue.Publish(ctx, body); err != nil {
		return fmt.Errorf("publish %s: %w", typ, err)
	}
	return nil
}
