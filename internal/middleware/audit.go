package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/MontelAle/participium-sub001/internal/logging"
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

const (
	maxAuditBody = 2000
	redacted     = "[redacted]"
)

// Audit records mutations made by authenticated users. Path and action are
// encrypted with encryptKey before they are stored.
func Audit(db *gorm.DB, encryptKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isMutation(c.Request.Method) {
			c.Next()
			return
		}

		var bodyBytes []byte
		if c.Request.Body != nil && auditableBody(c.Request) {
			bodyBytes, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxAuditBody+1))
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(bodyBytes), c.Request.Body))
		}

		c.Next()

		user := CurrentUser(c)
		if user == nil {
			return
		}

		path := c.Request.URL.Path
		action := c.Request.Method + " " + path
		if len(bodyBytes) > 0 && len(bodyBytes) <= maxAuditBody {
			if body, ok := redactBody(bodyBytes); ok {
				action += " " + body
			}
		}

		encPath, err := util.EncryptField(encryptKey, path)
		if err != nil {
			logging.Err(err).Msg("encrypt audit path")
			return
		}
		encAction, err := util.EncryptField(encryptKey, action)
		if err != nil {
			logging.Err(err).Msg("encrypt audit action")
			return
		}

		userID := user.ID
		entry := models.AuditLog{
			UserID:    &userID,
			Method:    c.Request.Method,
			PathEnc:   encPath,
			ActionEnc: encAction,
			Status:    c.Writer.Status(),
			IP:        c.ClientIP(),
			UserAgent: truncate(c.Request.UserAgent(), 255),
		}
		if err := db.WithContext(c.Request.Context()).Create(&entry).Error; err != nil {
			logging.Err(err).Uint("user_id", userID).Msg("write audit log")
		}
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// auditableBody skips uploads and the credential endpoints. Other bodies are
// stored through redactBody.
func auditableBody(r *http.Request) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return false
	}
	p := r.URL.Path
	return !strings.Contains(p, "password") && !strings.HasPrefix(p, "/api/auth/")
}

// redactBody masks every field whose name mentions a password, at any depth.
// Bodies that are not valid JSON are dropped.
func redactBody(raw []byte) (string, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	out, err := json.Marshal(redactValue(v))
	if err != nil {
		return "", false
	}
	return string(out), true
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if strings.Contains(strings.ToLower(k), "password") {
				t[k] = redacted
				continue
			}
			t[k] = redactValue(val)
		}
	case []any:
		for i, val := range t {
			t[i] = redactValue(val)
		}
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
