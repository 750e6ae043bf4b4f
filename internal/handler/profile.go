package handler

import (
	"net/http"
	"strings"

	"github.com/MontelAle/participium-sub001/internal/middleware"
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/session"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UpdateProfileReq changes the caller's own profile. Nil fields are left alone.
type UpdateProfileReq struct {
	FirstName          *string `json:"first_name" binding:"omitempty,min=1,max=64"`
	LastName           *string `json:"last_name" binding:"omitempty,min=1,max=64"`
	EmailNotifications *bool   `json:"email_notifications"`
	TelegramUsername   *string `json:"telegram_username" binding:"omitempty,max=64"`
}

// ChangePasswordReq replaces the caller's password.
type ChangePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,strongpassword"`
}

// UpdateProfile updates names, notification preference and Telegram handle.
func UpdateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}

		var req UpdateProfileReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.ValidationError(c, err)
			return
		}

		updates := map[string]interface{}{}
		if req.FirstName != nil {
			updates["first_name"] = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			updates["last_name"] = strings.TrimSpace(*req.LastName)
		}
		if req.EmailNotifications != nil {
			updates["email_notifications"] = *req.EmailNotifications
		}
		if req.TelegramUsername != nil {
			updates["telegram_username"] = strings.TrimPrefix(strings.TrimSpace(*req.TelegramUsername), "@")
		}
		if len(updates) == 0 {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "nothing to update")
			return
		}

		if err := db.Model(&models.User{ID: user.ID}).Updates(updates).Error; err != nil {
			internalError(c, err, "failed to update profile")
			return
		}

		var fresh models.User
		if err := db.Preload("Role").Preload("Office").First(&fresh, user.ID).Error; err != nil {
			internalError(c, err, "failed to reload profile")
			return
		}
		util.Success(c, util.Response{"user": newUserResp(&fresh)})
	}
}

// ChangePassword checks the old password, stores the new one and signs out
// every other session of the caller.
func ChangePassword(db *gorm.DB, sessions *session.Store, cost int) gin.HandlerFunc {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}

		var req ChangePasswordReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.ValidationError(c, err)
			return
		}

		// the session user carries no hash
		var stored models.User
		if err := db.Select("id", "password_hash").First(&stored, user.ID).Error; err != nil {
			internalError(c, err, "failed to load user")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(req.OldPassword)); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "current password is wrong")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), cost)
		if err != nil {
			internalError(c, err, "failed to hash password")
			return
		}
		if err := db.Model(&stored).Update("password_hash", string(hash)).Error; err != nil {
			internalError(c, err, "failed to update password")
			return
		}

		keep := ""
		if sess := middleware.CurrentSession(c); sess != nil {
			keep = sess.ID
		}
		if err := sessions.RevokeAllForUser(c.Request.Context(), user.ID, keep); err != nil {
			internalError(c, err, "failed to revoke sessions")
			return
		}

		util.Success(c, util.Response{"message": "password changed, other sessions signed out"})
	}
}
