package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MontelAle/participium-sub001/internal/authz"
	"github.com/MontelAle/participium-sub001/internal/config"
	"github.com/MontelAle/participium-sub001/internal/database"
	"github.com/MontelAle/participium-sub001/internal/geo"
	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/mailer"
	"github.com/MontelAle/participium-sub001/internal/metrics"
	"github.com/MontelAle/participium-sub001/internal/middleware"
	"github.com/MontelAle/participium-sub001/internal/notify"
	"github.com/MontelAle/participium-sub001/internal/router"
	"github.com/MontelAle/participium-sub001/internal/session"
	"github.com/MontelAle/participium-sub001/internal/storage"
	"github.com/MontelAle/participium-sub001/internal/supervisor"
	"github.com/MontelAle/participium-sub001/internal/util"
	"github.com/MontelAle/participium-sub001/internal/validation"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the notification router and the session janitor",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Info().Str("config", cfg.String()).Msg("starting participium")

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	if err := bootstrapAdmin(db, cfg); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if cfg.Verification.Secret == "" {
		secret, err := util.RandomString(48)
		if err != nil {
			return err
		}
		cfg.Verification.Secret = secret
		logging.Warn().Msg("verification.secret not set, pending verification tokens will not survive a restart")
	}
	if err := validation.Register(); err != nil {
		return err
	}

	m := metrics.New()
	sessions := session.NewStore(db, time.Duration(cfg.Session.ExpiresInSeconds)*time.Second,
		session.WithObserver(func(o session.Outcome) { m.ObserveSession(string(o)) }))

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return err
	}
	photos, err := storage.NewPhotoStore(cfg.Uploads.Dir, cfg.Uploads.MaxPhotoBytes)
	if err != nil {
		return err
	}
	boundary, err := boundaryFrom(cfg)
	if err != nil {
		return err
	}

	bus := notify.NewBus(notify.NewLogger(logging.Logger()))
	defer func() { _ = bus.Close() }()
	consumer := notify.NewConsumer(db, m)

	limiter := middleware.NewRateLimiter(cfg.Security.LoginRatePerMinute, cfg.Security.LoginBurst)

	engine := router.SetupRouter(router.Deps{
		Config:   cfg,
		DB:       db,
		Sessions: sessions,
		Authz:    enforcer,
		Mailer:   mailer.LogMailer{},
		Events:   bus,
		Photos:   photos,
		Metrics:  m,
		Limiter:  limiter,
		Boundary: boundary,
	})

	shutdown := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(shutdown)
	tree.AddBackground(supervisor.NewNotifyService(func() (*message.Router, error) {
		return notify.NewRouter(bus, consumer)
	}))
	tree.AddBackground(supervisor.NewJanitorService(sessions,
		time.Duration(cfg.Session.PurgeIntervalSeconds)*time.Second, limiter))
	tree.AddAPI(supervisor.NewHTTPService(srv, shutdown))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", srv.Addr).Msg("server listening")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("server stopped")
	return nil
}

// boundaryFrom returns the configured geofence; an empty polygon disables it.
func boundaryFrom(cfg *config.Config) (geo.Polygon, error) {
	if len(cfg.Geofence.Polygon) == 0 {
		return nil, nil
	}
	poly, err := geo.PolygonFromPairs(cfg.Geofence.Polygon)
	if err != nil {
		return nil, fmt.Errorf("geofence: %w", err)
	}
	return poly, nil
}
