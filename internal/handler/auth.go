package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MontelAle/participium-sub001/internal/database"
	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/mailer"
	"github.com/MontelAle/participium-sub001/internal/middleware"
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/session"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	maxFailedLogins = 5
	lockoutDuration = 10 * time.Minute
)

// AuthOptions carries the settings AuthHandler needs from configuration.
type AuthOptions struct {
	CookieName           string
	CookieSecure         bool
	BcryptCost           int
	VerificationSecret   string
	VerificationTTL      time.Duration
	VerificationRequired bool
}

// AuthHandler serves registration, e-mail verification and login/logout.
type AuthHandler struct {
	DB       *gorm.DB
	Sessions *session.Store
	Mailer   mailer.Mailer
	Opts     AuthOptions
}

func NewAuthHandler(db *gorm.DB, sessions *session.Store, m mailer.Mailer, opts AuthOptions) *AuthHandler {
	if opts.BcryptCost < bcrypt.MinCost {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.CookieName == "" {
		opts.CookieName = "session_token"
	}
	return &AuthHandler{DB: db, Sessions: sessions, Mailer: m, Opts: opts}
}

// ---------- register ----------

type registerReq struct {
	Username        string `json:"username" binding:"required,username"`
	Email           string `json:"email" binding:"required,email,max=255"`
	FirstName       string `json:"first_name" binding:"required,max=64"`
	LastName        string `json:"last_name" binding:"required,max=64"`
	Password        string `json:"password" binding:"required,strongpassword"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
}

// Register creates a citizen account and sends the verification token.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	taken, err := usernameOrEmailTaken(h.DB, req.Username, req.Email)
	if err != nil {
		internalError(c, err, "failed to check existing users")
		return
	}
	if taken {
		util.Error(c, http.StatusConflict, util.CodeConflict, "username or email already registered")
		return
	}

	role, err := database.RoleByName(h.DB, models.RoleCitizen)
	if err != nil {
		internalError(c, err, "failed to load citizen role")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.Opts.BcryptCost)
	if err != nil {
		internalError(c, err, "failed to hash password")
		return
	}

	user := models.User{
		Username:           req.Username,
		Email:              req.Email,
		FirstName:          strings.TrimSpace(req.FirstName),
		LastName:           strings.TrimSpace(req.LastName),
		PasswordHash:       string(hash),
		RoleID:             role.ID,
		EmailVerified:      !h.Opts.VerificationRequired,
		EmailNotifications: true,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		internalError(c, err, "failed to create user")
		return
	}
	user.Role = *role

	if h.Opts.VerificationRequired {
		token, err := util.GenerateVerificationToken(h.Opts.VerificationSecret, user.ID, user.Email, h.Opts.VerificationTTL)
		if err != nil {
			internalError(c, err, "failed to create verification token")
			return
		}
		if err := h.Mailer.SendVerification(c.Request.Context(), &user, token); err != nil {
			logging.Err(err).Uint("user_id", user.ID).Msg("send verification e-mail")
		}
	}

	logging.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("citizen registered")
	util.Created(c, util.Response{
		"user":                  newUserResp(&user),
		"verification_required": h.Opts.VerificationRequired,
	})
}

func usernameOrEmailTaken(db *gorm.DB, username, email string) (bool, error) {
	var count int64
	err := db.Model(&models.User{}).
		Where("LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", username, email).
		Count(&count).Error
	return count > 0, err
}

// ---------- verify ----------

type verifyReq struct {
	Token string `json:"token" binding:"required"`
}

// Verify confirms the e-mail address carried by a signed token.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, err)
		return
	}

	claims, err := util.ParseVerificationToken(h.Opts.VerificationSecret, req.Token)
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid or expired verification token")
		return
	}

	var user models.User
	if err := h.DB.Preload("Role").First(&user, claims.UserID).Error; err != nil {
		notFoundOr(c, err, "user")
		return
	}
	if !strings.EqualFold(user.Email, claims.Email) {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "invalid or expired verification token")
		return
	}

	if !user.EmailVerified {
		if err := h.DB.Model(&user).Update("email_verified", true).Error; err != nil {
			internalError(c, err, "failed to verify e-mail")
			return
		}
		user.EmailVerified = true
	}
	util.Success(c, util.Response{"user": newUserResp(&user)})
}

// ---------- login ----------

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials and sets the session cookie. Username may also be
// the e-mail address. Five wrong passwords lock the account for ten minutes.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, err)
		return
	}
	login := strings.TrimSpace(req.Username)

	var user models.User
	err := h.DB.Preload("Role").Preload("Office").
		Where("LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", login, login).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "invalid username or password")
		} else {
			internalError(c, err, "failed to load user")
		}
		return
	}

	now := time.Now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "account locked, try again later")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.recordFailedLogin(&user, now)
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "invalid username or password")
		return
	}

	if h.Opts.VerificationRequired && !user.EmailVerified {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "e-mail address not verified")
		return
	}

	ip := c.ClientIP()
	if err := h.DB.Model(&user).Updates(map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         now,
		"last_login_ip":         ip,
	}).Error; err != nil {
		internalError(c, err, "failed to update login state")
		return
	}
	user.LastLoginAt = &now
	user.LastLoginIP = ip

	token, _, err := h.Sessions.Create(c.Request.Context(), &user, ip, c.Request.UserAgent())
	if err != nil {
		internalError(c, err, "failed to create session")
		return
	}
	h.setCookie(c, token, int(h.Sessions.TTL().Seconds()))

	logging.Info().Uint("user_id", user.ID).Str("ip", ip).Msg("user logged in")
	util.Success(c, util.Response{"user": newUserResp(&user)})
}

func (h *AuthHandler) recordFailedLogin(user *models.User, now time.Time) {
	attempts := user.FailedLoginAttempts + 1
	updates := map[string]interface{}{"failed_login_attempts": attempts}
	if attempts >= maxFailedLogins {
		updates["failed_login_attempts"] = 0
		updates["locked_until"] = now.Add(lockoutDuration)
		logging.Warn().Uint("user_id", user.ID).Msg("account locked after failed logins")
	}
	if err := h.DB.Model(user).Updates(updates).Error; err != nil {
		logging.Err(err).Uint("user_id", user.ID).Msg("record failed login")
	}
}

// ---------- logout / me ----------

// Logout revokes the current session and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if sess == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "authentication required")
		return
	}
	if err := h.Sessions.Revoke(c.Request.Context(), sess.ID); err != nil {
		internalError(c, err, "failed to revoke session")
		return
	}
	h.setCookie(c, "", -1)
	util.Success(c, util.Response{"message": "logged out"})
}

// Me returns the session user, or null for anonymous callers.
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		util.Success(c, util.Response{"user": nil})
		return
	}
	util.Success(c, util.Response{"user": newUserResp(user)})
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.Opts.CookieName, value, maxAge, "/", "", h.Opts.CookieSecure, true)
}
