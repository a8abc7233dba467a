package auditbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/orbital/kernel/internal/kerntypes"
)

// PubSub durably fans out the same events InProcess delivers locally,
// publishing each to a Cloud Pub/Sub topic for cross-service/SIEM
// consumption, adapted from the teacher's PubSubEventBus. Local
// websocket subscribers still work — PubSub embeds an InProcess bus
// rather than replacing it.
type PubSub struct {
	*InProcess

	client *pubsub.Client
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewPubSub connects to projectID and publishes onto topicID, creating
// the topic if it does not already exist.
func NewPubSub(projectID, topicID string) (*PubSub, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
	}

	return &PubSub{
		InProcess: NewInProcess(),
		client:    client,
		topic:     topic,
		logger:    slog.Default().With("component", "auditbus.pubsub"),
	}, nil
}

func (p *PubSub) publishRemote(e *Event) {
	payload, err := e.JSON()
	if err != nil {
		p.logger.Warn("failed to marshal event for pubsub", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		defer cancel()
		result := p.topic.Publish(ctx, &pubsub.Message{
			Data:       payload,
			Attributes: map[string]string{"type": e.Type},
		})
		if _, err := result.Get(ctx); err != nil {
			p.logger.Warn("pubsub publish failed", "error", err, "event_id", e.ID)
		}
	}()
}

func (p *PubSub) EmitCommit(c kerntypes.Commit) {
	p.InProcess.EmitCommit(c)
	p.publishRemote(newEvent(TypeCommit, fmt.Sprintf("seq-%d", c.Seq), map[string]interface{}{"seq": c.Seq}, time.Now()))
}

func (p *PubSub) EmitSysEvent(e kerntypes.SysEvent) {
	p.InProcess.EmitSysEvent(e)
	p.publishRemote(newEvent(TypeSysEvent, fmt.Sprintf("req-%d", e.Id), map[string]interface{}{"id": e.Id}, time.Now()))
}

func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

var _ Bus = (*PubSub)(nil)
