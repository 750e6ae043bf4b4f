package supervisor

import (
	"context"
	"time"

	"github.com/MontelAle/participium-sub001/internal/logging"
)

// Purger removes expired sessions.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Pruner drops idle per-client state such as rate limit buckets.
type Pruner interface {
	Prune() int
}

// JanitorService periodically purges expired sessions and idle limiter buckets.
type JanitorService struct {
	purger   Purger
	pruners  []Pruner
	interval time.Duration
}

func NewJanitorService(purger Purger, interval time.Duration, pruners ...Pruner) *JanitorService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &JanitorService{purger: purger, pruners: pruners, interval: interval}
}

func (j *JanitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.sweep(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (j *JanitorService) sweep(ctx context.Context) {
	n, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.Err(err).Msg("purge expired sessions")
		}
	} else if n > 0 {
		logging.Info().Int64("removed", n).Msg("purged expired sessions")
	}
	for _, p := range j.pruners {
		p.Prune()
	}
}

func (j *JanitorService) String() string {
	return "session-janitor"
}
