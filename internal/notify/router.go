package notify

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// NewRouter wires the consumer handlers to the bus. A router runs once, so
// a restarted service needs a fresh one.
func NewRouter(bus *Bus, consumer *Consumer) (*message.Router, error) {
	logger := bus.Logger()
	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("create notification router: %w", err)
	}

	r.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		Logger:          logger,
	}
	r.AddMiddleware(retry.Middleware)

	r.AddNoPublisherHandler("notify-status-changed", TopicStatusChanged, bus.Subscriber(), consumer.HandleStatusChanged)
	r.AddNoPublisherHandler("notify-message-posted", TopicMessagePosted, bus.Subscriber(), consumer.HandleMessagePosted)
	return r, nil
}
