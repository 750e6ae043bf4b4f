package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MontelAle/participium-sub001/internal/database"
	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserHandler lets administrators manage municipality accounts.
type UserHandler struct {
	DB         *gorm.DB
	BcryptCost int
	PageSize   int
}

func NewUserHandler(db *gorm.DB, bcryptCost, pageSize int) *UserHandler {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserHandler{DB: db, BcryptCost: bcryptCost, PageSize: pageSize}
}

// ListUsers pages through users, optionally filtered by ?role=.
func (h *UserHandler) ListUsers(c *gin.Context) {
	p := util.ParsePage(c, h.PageSize)

	base := h.DB.Model(&models.User{})
	if role := strings.TrimSpace(c.Query("role")); role != "" {
		base = base.Joins("JOIN roles ON roles.id = users.role_id").Where("roles.name = ?", role)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		internalError(c, err, "failed to count users")
		return
	}

	var users []models.User
	if err := base.Preload("Role").Preload("Office").
		Order("users.id").
		Limit(p.Size).
		Offset(p.Offset).
		Find(&users).Error; err != nil {
		internalError(c, err, "failed to list users")
		return
	}

	items := make([]userResp, 0, len(users))
	for i := range users {
		items = append(items, newUserResp(&users[i]))
	}
	util.Success(c, util.Response{
		"items": items,
		"total": total,
		"page":  p.Page,
		"size":  p.Size,
	})
}

type createUserReq struct {
	Username  string `json:"username" binding:"required,username"`
	Email     string `json:"email" binding:"required,email,max=255"`
	FirstName string `json:"first_name" binding:"required,max=64"`
	LastName  string `json:"last_name" binding:"required,max=64"`
	Password  string `json:"password" binding:"required,strongpassword"`
	Role      string `json:"role" binding:"required,oneof=admin pr_officer tech_officer external_maintainer"`
	OfficeID  *uint  `json:"office_id"`
}

// CreateUser adds a municipality employee or external maintainer.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	role, office, ok := h.resolveRoleOffice(c, req.Role, req.OfficeID)
	if !ok {
		return
	}

	taken, err := usernameOrEmailTaken(h.DB, req.Username, req.Email)
	if err != nil {
		internalError(c, err, "failed to check existing users")
		return
	}
	if taken {
		util.Error(c, http.StatusConflict, util.CodeConflict, "username or email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.BcryptCost)
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
		OfficeID:           req.OfficeID,
		EmailVerified:      true,
		EmailNotifications: true,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		internalError(c, err, "failed to create user")
		return
	}
	user.Role = *role
	user.Office = office

	logging.Info().Uint("user_id", user.ID).Str("role", role.Name).Msg("municipality user created")
	util.Created(c, util.Response{"user": newUserResp(&user)})
}

type updateRoleReq struct {
	Role     string `json:"role" binding:"required,oneof=citizen admin pr_officer tech_officer external_maintainer"`
	OfficeID *uint  `json:"office_id"`
}

// UpdateRole changes a user's role and office.
func (h *UserHandler) UpdateRole(c *gin.Context) {
	id, err := util.ParseID(c, "id")
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	var req updateRoleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.ValidationError(c, err)
		return
	}

	var user models.User
	if err := h.DB.First(&user, id).Error; err != nil {
		notFoundOr(c, err, "user")
		return
	}

	role, office, ok := h.resolveRoleOffice(c, req.Role, req.OfficeID)
	if !ok {
		return
	}

	if err := h.DB.Model(&user).Updates(map[string]interface{}{
		"role_id":   role.ID,
		"office_id": req.OfficeID,
	}).Error; err != nil {
		internalError(c, err, "failed to update role")
		return
	}
	user.RoleID = role.ID
	user.Role = *role
	user.OfficeID = req.OfficeID
	user.Office = office

	util.Success(c, util.Response{"user": newUserResp(&user)})
}

// ListRoles returns every role.
func (h *UserHandler) ListRoles(c *gin.Context) {
	var roles []models.Role
	if err := h.DB.Order("id").Find(&roles).Error; err != nil {
		internalError(c, err, "failed to list roles")
		return
	}
	items := make([]roleResp, 0, len(roles))
	for _, r := range roles {
		items = append(items, newRoleResp(r))
	}
	util.Success(c, util.Response{"items": items})
}

// resolveRoleOffice loads the role and checks the office rule: technical
// staff belong to a municipal office, maintainers to an external one, and
// other roles to none.
func (h *UserHandler) resolveRoleOffice(c *gin.Context, roleName string, officeID *uint) (*models.Role, *models.Office, bool) {
	role, err := database.RoleByName(h.DB, roleName)
	if err != nil {
		notFoundOr(c, err, "role")
		return nil, nil, false
	}

	var office *models.Office
	if officeID != nil {
		office = &models.Office{}
		if err := h.DB.First(office, *officeID).Error; err != nil {
			notFoundOr(c, err, "office")
			return nil, nil, false
		}
	}

	if err := checkOfficeRule(role.Name, office); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return nil, nil, false
	}
	return role, office, true
}

func checkOfficeRule(role string, office *models.Office) error {
	switch role {
	case models.RoleTechOfficer:
		if office == nil || office.IsExternal {
			return errors.New("technical office staff need a municipal office")
		}
	case models.RoleExternalMaintainer:
		if office == nil || !office.IsExternal {
			return errors.New("external maintainers need an external company office")
		}
	default:
		if office != nil {
			return errors.New(role + " users cannot belong to an office")
		}
	}
	return nil
}
