// Package supervisor runs the long-lived parts of the server under suture.
package supervisor

import (
	"context"
	"time"

	"github.com/MontelAle/participium-sub001/internal/logging"

	"github.com/thejerf/suture/v4"
)

// Tree is the root supervisor with one child per layer.
type Tree struct {
	root       *suture.Supervisor
	background *suture.Supervisor
	api        *suture.Supervisor
}

// NewTree builds the tree. shutdownTimeout bounds how long each service
// may take to stop.
func NewTree(shutdownTimeout time.Duration) *Tree {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	spec := suture.Spec{
		EventHook:        logEvent,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	}
	childSpec := spec
	childSpec.EventHook = nil

	root := suture.New("participium", spec)
	background := suture.New("background", childSpec)
	api := suture.New("api", childSpec)
	root.Add(background)
	root.Add(api)

	return &Tree{root: root, background: background, api: api}
}

// AddBackground adds a service that does not face clients (notifications, janitor).
func (t *Tree) AddBackground(svc suture.Service) suture.ServiceToken {
	return t.background.Add(svc)
}

// AddAPI adds the HTTP server.
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve blocks until ctx is canceled or the root gives up.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func logEvent(ev suture.Event) {
	e := logging.Warn()
	if ev.Type() == suture.EventTypeServicePanic {
		e = logging.Error()
	}
	e.Fields(ev.Map()).Msg(ev.String())
}
