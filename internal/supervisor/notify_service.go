package supervisor

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
)

// RouterFactory builds a fresh watermill router; a router cannot be run twice.
type RouterFactory func() (*message.Router, error)

// NotifyService runs the notification router.
type NotifyService struct {
	build RouterFactory
}

func NewNotifyService(build RouterFactory) *NotifyService {
	return &NotifyService{build: build}
}

func (s *NotifyService) Serve(ctx context.Context) error {
	r, err := s.build()
	if err != nil {
		return fmt.Errorf("build notification router: %w", err)
	}
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("notification router: %w", err)
	}
	return ctx.Err()
}

func (s *NotifyService) String() string {
	return "notification-router"
}
