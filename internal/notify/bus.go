// Package notify carries report events over an in-process watermill bus and
// turns them into per-user notifications.
package notify

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Publisher is what handlers need to announce report events.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, ev StatusChanged) error
	PublishMessagePosted(ctx context.Context, ev MessagePosted) error
}

// Bus is a gochannel pub/sub shared by publishers and the notification router.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus creates the bus. Messages are buffered per subscriber.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger),
		logger: logger,
	}
}

// Subscriber returns the subscribing side of the bus.
func (b *Bus) Subscriber() message.Subscriber {
	return b.pubsub
}

// Logger is the watermill logger shared with the router.
func (b *Bus) Logger() watermill.LoggerAdapter {
	return b.logger
}

func (b *Bus) PublishStatusChanged(ctx context.Context, ev StatusChanged) error {
	return b.publish(ctx, TopicStatusChanged, ev)
}

func (b *Bus) PublishMessagePosted(ctx context.Context, ev MessagePosted) error {
	return b.publish(ctx, TopicMessagePosted, ev)
}

func (b *Bus) publish(ctx context.Context, topic string, ev interface{}) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(context.WithoutCancel(ctx))
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close stops delivery to every subscriber.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
