package router

import (
	"time"

	"github.com/MontelAle/participium-sub001/internal/authz"
	"github.com/MontelAle/participium-sub001/internal/config"
	"github.com/MontelAle/participium-sub001/internal/geo"
	"github.com/MontelAle/participium-sub001/internal/handler"
	"github.com/MontelAle/participium-sub001/internal/mailer"
	"github.com/MontelAle/participium-sub001/internal/metrics"
	"github.com/MontelAle/participium-sub001/internal/middleware"
	"github.com/MontelAle/participium-sub001/internal/notify"
	"github.com/MontelAle/participium-sub001/internal/session"
	"github.com/MontelAle/participium-sub001/internal/storage"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps is everything the HTTP layer is built from.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Sessions *session.Store
	Authz    middleware.Authorizer
	Mailer   mailer.Mailer
	Events   notify.Publisher
	Photos   *storage.PhotoStore
	Metrics  *metrics.Metrics
	Limiter  *middleware.RateLimiter
	Boundary geo.Polygon
}

// SetupRouter configures the Gin engine with all API routes.
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(
		middleware.Recovery(),
		middleware.RequestLogger(),
		middleware.Metrics(d.Metrics),
		middleware.SessionGuard(d.Sessions, cfg.Session.CookieName),
		middleware.Audit(d.DB, cfg.Security.EncryptionKey),
	)

	r.GET("/healthz", func(c *gin.Context) {
		util.Success(c, util.Response{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	if d.Photos != nil {
		r.Static("/uploads", d.Photos.Dir())
	}

	pageSize := cfg.App.PageSize
	auth := middleware.RequireSession()
	allow := func(resource, action string) gin.HandlerFunc {
		return middleware.Authorize(d.Authz, resource, action)
	}

	api := r.Group("/api")

	// ====== auth ======
	authHandler := handler.NewAuthHandler(d.DB, d.Sessions, d.Mailer, handler.AuthOptions{
		CookieName:           cfg.Session.CookieName,
		CookieSecure:         cfg.Session.Secure,
		BcryptCost:           cfg.Security.BcryptCost,
		VerificationSecret:   cfg.Verification.Secret,
		VerificationTTL:      time.Duration(cfg.Verification.TTLMinutes) * time.Minute,
		VerificationRequired: cfg.Verification.Required,
	})
	login := []gin.HandlerFunc{authHandler.Login}
	if d.Limiter != nil {
		login = append([]gin.HandlerFunc{middleware.RateLimit(d.Limiter)}, login...)
	}
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/verify", authHandler.Verify)
	api.POST("/auth/login", login...)
	api.POST("/auth/logout", auth, authHandler.Logout)
	api.GET("/auth/me", authHandler.Me)

	// ====== profile ======
	api.PATCH("/users/me", auth, handler.UpdateProfile(d.DB))
	api.POST("/users/me/password", auth, handler.ChangePassword(d.DB, d.Sessions, cfg.Security.BcryptCost))

	// ====== administration ======
	userHandler := handler.NewUserHandler(d.DB, cfg.Security.BcryptCost, pageSize)
	manageUsers := allow(authz.ResourceUser, authz.ActionManage)
	api.GET("/users", manageUsers, userHandler.ListUsers)
	api.POST("/users", manageUsers, userHandler.CreateUser)
	api.PATCH("/users/:id/role", manageUsers, userHandler.UpdateRole)
	api.GET("/roles", manageUsers, userHandler.ListRoles)

	logHandler := handler.NewLogHandler(d.DB, cfg.Security.EncryptionKey, pageSize)
	api.GET("/logs", allow(authz.ResourceAudit, authz.ActionRead), logHandler.ListLogs)

	// ====== taxonomy ======
	taxonomy := handler.NewTaxonomyHandler(d.DB)
	api.GET("/offices", taxonomy.ListOffices)
	api.GET("/categories", taxonomy.ListCategories)

	// ====== reports ======
	reportHandler := handler.NewReportHandler(d.DB, d.Photos, d.Events, d.Metrics, handler.ReportOptions{
		Boundary:  d.Boundary,
		MaxPhotos: cfg.Uploads.MaxPhotos,
		PageSize:  pageSize,
	})
	exportHandler := handler.NewExportHandler(d.DB)
	threads := handler.NewThreadHandler(d.DB, d.Events)

	reports := api.Group("/reports")
	reports.POST("", allow(authz.ResourceReport, authz.ActionCreate), reportHandler.CreateReport)
	reports.GET("", reportHandler.ListReports)
	reports.GET("/map", reportHandler.MapReports)
	reports.GET("/mine", auth, reportHandler.MyReports)
	reports.GET("/assigned", allow(authz.ResourceReport, authz.ActionReadAssigned), reportHandler.AssignedReports)
	reports.GET("/export.csv", allow(authz.ResourceReport, authz.ActionExport), exportHandler.ExportCSV)
	reports.GET("/export.xlsx", allow(authz.ResourceReport, authz.ActionExport), exportHandler.ExportXLSX)
	reports.GET("/:id", reportHandler.GetReport)
	reports.POST("/:id/review", allow(authz.ResourceReport, authz.ActionReview), reportHandler.ReviewReport)
	reports.POST("/:id/assign", allow(authz.ResourceReport, authz.ActionAssign), reportHandler.AssignMaintainer)
	reports.POST("/:id/status", allow(authz.ResourceReport, authz.ActionUpdateStatus), reportHandler.UpdateStatus)

	reports.GET("/:id/comments", allow(authz.ResourceComment, authz.ActionRead), threads.ListComments)
	reports.POST("/:id/comments", allow(authz.ResourceComment, authz.ActionWrite), threads.PostComment)
	reports.GET("/:id/messages", auth, threads.ListMessages)
	reports.POST("/:id/messages", allow(authz.ResourceMessage, authz.ActionWrite), threads.PostMessage)

	// ====== notifications ======
	notifications := handler.NewNotificationHandler(d.DB, pageSize)
	api.GET("/notifications", auth, notifications.ListNotifications)
	api.POST("/notifications/read-all", auth, notifications.MarkAllRead)
	api.POST("/notifications/:id/read", auth, notifications.MarkRead)

	return r
}
