package router

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MontelAle/participium-sub001/internal/authz"
	"github.com/MontelAle/participium-sub001/internal/config"
	"github.com/MontelAle/participium-sub001/internal/geo"
	"github.com/MontelAle/participium-sub001/internal/mailer"
	"github.com/MontelAle/participium-sub001/internal/metrics"
	"github.com/MontelAle/participium-sub001/internal/middleware"
	"github.com/MontelAle/participium-sub001/internal/models"
	"github.com/MontelAle/participium-sub001/internal/notify"
	"github.com/MontelAle/participium-sub001/internal/session"
	"github.com/MontelAle/participium-sub001/internal/storage"
	"github.com/MontelAle/participium-sub001/internal/testutil"
	"github.com/MontelAle/participium-sub001/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const cookieName = "session_token"

type testEnv struct {
	t      *testing.T
	db     *gorm.DB
	engine *gin.Engine
	mail   *mailer.MemoryMailer
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	require.NoError(t, validation.Register())

	cfg := &config.Config{
		Server:       config.ServerConfig{Mode: gin.TestMode},
		Session:      config.SessionConfig{CookieName: cookieName, ExpiresInSeconds: 3600},
		Security:     config.SecurityConfig{BcryptCost: bcrypt.MinCost, EncryptionKey: "audit-key", LoginRatePerMinute: 600, LoginBurst: 100},
		Verification: config.VerificationConfig{Secret: "verify-secret", TTLMinutes: 30, Required: true},
		Uploads:      config.UploadConfig{Dir: t.TempDir(), MaxPhotos: 3, MaxPhotoBytes: 1 << 20},
		Geofence:     config.GeofenceConfig{Polygon: config.TurinBoundary},
		App:          config.AppSubConfig{PageSize: 20},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	db := testutil.OpenDB(t)
	m := metrics.New()
	enforcer, err := authz.NewEnforcer()
	require.NoError(t, err)
	photos, err := storage.NewPhotoStore(cfg.Uploads.Dir, cfg.Uploads.MaxPhotoBytes)
	require.NoError(t, err)
	boundary, err := geo.PolygonFromPairs(cfg.Geofence.Polygon)
	require.NoError(t, err)

	bus := notify.NewBus(nil)
	r, err := notify.NewRouter(bus, notify.NewConsumer(db, m))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	<-r.Running()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = bus.Close()
	})

	mail := &mailer.MemoryMailer{}
	engine := SetupRouter(Deps{
		Config:   cfg,
		DB:       db,
		Sessions: session.NewStore(db, time.Hour),
		Authz:    enforcer,
		Mailer:   mail,
		Events:   bus,
		Photos:   photos,
		Metrics:  m,
		Limiter:  middleware.NewRateLimiter(cfg.Security.LoginRatePerMinute, cfg.Security.LoginBurst),
		Boundary: boundary,
	})
	return &testEnv{t: t, db: db, engine: engine, mail: mail}
}

type envelope struct {
	Success bool              `json:"success"`
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

func (e *testEnv) send(req *http.Request, cookie string) *httptest.ResponseRecorder {
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) do(method, path string, body interface{}, cookie string) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(req, cookie)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

func (e *testEnv) login(username string) string {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/login",
		map[string]string{"username": username, "password": testutil.Password}, "")
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c.Value
		}
	}
	e.t.Fatal("login set no session cookie")
	return ""
}

func reportForm(t *testing.T, fields map[string]string, photos int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for i := 0; i < photos; i++ {
		fw, err := w.CreateFormFile("photos", fmt.Sprintf("photo%d.png", i))
		require.NoError(t, err)
		_, err = fw.Write(testutil.PNG)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (e *testEnv) submitReport(cookie string, fields map[string]string, photos int) *httptest.ResponseRecorder {
	e.t.Helper()
	body, contentType := reportForm(e.t, fields, photos)
	req := httptest.NewRequest(http.MethodPost, "/api/reports", body)
	req.Header.Set("Content-Type", contentType)
	return e.send(req, cookie)
}

type idRef struct {
	ID uint `json:"id"`
}

type reportBody struct {
	Report struct {
		ID                 uint   `json:"id"`
		Status             string `json:"status"`
		Reporter           *idRef `json:"reporter"`
		AssignedOffice     *idRef `json:"assigned_office"`
		ExternalMaintainer *idRef `json:"external_maintainer"`
		RejectionReason    string `json:"rejection_reason"`
		Photos             []struct {
			URL string `json:"url"`
		} `json:"photos"`
	} `json:"report"`
}

type listBody struct {
	Items []struct {
		ID             uint     `json:"id"`
		Status         string   `json:"status"`
		DistanceMeters *float64 `json:"distance_meters"`
	} `json:"items"`
	Total int64 `json:"total"`
}

func (l listBody) ids() []uint {
	out := make([]uint, 0, len(l.Items))
	for _, it := range l.Items {
		out = append(out, it.ID)
	}
	return out
}

var centerFields = map[string]string{
	"title":       "Pothole in via Roma",
	"description": "Deep pothole near the crossing",
	"latitude":    "45.0703",
	"longitude":   "7.6869",
}

func withCategory(fields map[string]string, categoryID uint) map[string]string {
	out := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["category_id"] = fmt.Sprint(categoryID)
	return out
}

// ---------- auth ----------

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterVerifyLogin(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username":         "mario_rossi",
		"email":            "mario@example.it",
		"first_name":       "Mario",
		"last_name":        "Rossi",
		"password":         "Password1",
		"confirm_password": "Password1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	login := map[string]string{"username": "mario@example.it", "password": "Password1"}
	rec = e.do(http.MethodPost, "/api/auth/login", login, "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "unverified users cannot log in")

	sent, ok := e.mail.Last()
	require.True(t, ok)
	rec = e.do(http.MethodPost, "/api/auth/verify", map[string]string{"token": sent.Token}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookie := e.login("mario_rossi")

	var me struct {
		User *struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	decode(t, e.do(http.MethodGet, "/api/auth/me", nil, cookie), &me)
	require.NotNil(t, me.User)
	assert.Equal(t, "mario_rossi", me.User.Username)
	assert.Equal(t, models.RoleCitizen, me.User.Role)

	rec = e.do(http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	me.User = nil
	decode(t, e.do(http.MethodGet, "/api/auth/me", nil, cookie), &me)
	assert.Nil(t, me.User, "revoked cookie resolves to anonymous")
}

func TestRegister_Validation(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username":         "x",
		"email":            "not-an-email",
		"first_name":       "A",
		"last_name":        "B",
		"password":         "weak",
		"confirm_password": "other",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decode(t, rec, nil)
	assert.Contains(t, env.Errors, "username")
	assert.Contains(t, env.Errors, "email")
	assert.Contains(t, env.Errors, "password")
	assert.Contains(t, env.Errors, "confirm_password")
}

func TestLogin_WrongPasswordAndLockout(t *testing.T) {
	e := newTestEnv(t)
	testutil.CreateUser(t, e.db, "lucia", models.RoleCitizen, nil)

	bad := map[string]string{"username": "lucia", "password": "Wrong1234"}
	for i := 0; i < 5; i++ {
		rec := e.do(http.MethodPost, "/api/auth/login", bad, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	good := map[string]string{"username": "lucia", "password": testutil.Password}
	rec := e.do(http.MethodPost, "/api/auth/login", good, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "account stays locked")
	assert.Contains(t, decode(t, rec, nil).Message, "locked")
}

func TestLogin_RateLimited(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) {
		c.Security.LoginRatePerMinute = 1
		c.Security.LoginBurst = 2
	})

	body := map[string]string{"username": "nobody", "password": "Password1"}
	for i := 0; i < 2; i++ {
		rec := e.do(http.MethodPost, "/api/auth/login", body, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := e.do(http.MethodPost, "/api/auth/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestSessionGuard_MalformedCookiesAreAnonymous(t *testing.T) {
	e := newTestEnv(t)
	for _, raw := range []string{"no-separator", "a.b.c", ".", "id.", ".secret"} {
		rec := e.do(http.MethodGet, "/api/auth/me", nil, raw)
		require.Equal(t, http.StatusOK, rec.Code, raw)
		assert.JSONEq(t, `{"user":null}`, string(decode(t, rec, nil).Data), raw)

		rec = e.do(http.MethodGet, "/api/reports/mine", nil, raw)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, raw)
	}
}

func TestRoleEnforcement(t *testing.T) {
	e := newTestEnv(t)
	testutil.CreateUser(t, e.db, "citizen", models.RoleCitizen, nil)
	cookie := e.login("citizen")

	for _, path := range []string{"/api/users", "/api/roles", "/api/logs", "/api/reports/assigned", "/api/reports/export.csv"} {
		assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, path, nil, cookie).Code, path)
		assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, path, nil, "").Code, path)
	}
	rec := e.do(http.MethodPost, "/api/reports/1/review", map[string]string{"action": "approve"}, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// ---------- profile ----------

func TestProfileAndPassword(t *testing.T) {
	e := newTestEnv(t)
	testutil.CreateUser(t, e.db, "anna", models.RoleCitizen, nil)
	cookie := e.login("anna")
	other := e.login("anna")

	rec := e.do(http.MethodPatch, "/api/users/me", map[string]interface{}{
		"telegram_username":   "@anna",
		"email_notifications": false,
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var u models.User
	require.NoError(t, e.db.Where("username = ?", "anna").First(&u).Error)
	assert.Equal(t, "@anna", u.TelegramUsername)
	assert.False(t, u.EmailNotifications)

	rec = e.do(http.MethodPost, "/api/users/me/password", map[string]string{
		"old_password": "Wrong1234",
		"new_password": "NewPassword2",
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/users/me/password", map[string]string{
		"old_password": testutil.Password,
		"new_password": "NewPassword2",
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/reports/mine", nil, cookie).Code, "current session survives")
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/reports/mine", nil, other).Code, "other sessions are revoked")
}

// ---------- administration ----------

func TestAdminCreatesStaff(t *testing.T) {
	e := newTestEnv(t)
	testutil.CreateUser(t, e.db, "admin", models.RoleAdmin, nil)
	cookie := e.login("admin")
	lighting := testutil.OfficeByName(t, e.db, "Lighting Office")
	external := testutil.OfficeByName(t, e.db, "Lumen Maintenance")

	staff := map[string]interface{}{
		"username":   "tecnico",
		"email":      "tecnico@comune.torino.it",
		"first_name": "Paolo",
		"last_name":  "Bianchi",
		"password":   "Password1",
		"role":       models.RoleTechOfficer,
	}
	rec := e.do(http.MethodPost, "/api/users", staff, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "technical staff need an office")

	staff["office_id"] = external.ID
	rec = e.do(http.MethodPost, "/api/users", staff, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "technical staff cannot join an external company")

	staff["office_id"] = lighting.ID
	rec = e.do(http.MethodPost, "/api/users", staff, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/users", staff, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var list struct {
		Items []struct {
			Username string `json:"username"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	decode(t, e.do(http.MethodGet, "/api/users?role=tech_officer", nil, cookie), &list)
	require.EqualValues(t, 1, list.Total)
	assert.Equal(t, "tecnico", list.Items[0].Username)

	// the mutations above are in the audit trail, decrypted
	var logs struct {
		Items []struct {
			Method string `json:"method"`
			Path   string `json:"path"`
			Status int    `json:"status"`
		} `json:"items"`
	}
	decode(t, e.do(http.MethodGet, "/api/logs?method=post", nil, cookie), &logs)
	require.NotEmpty(t, logs.Items)
	assert.Equal(t, "/api/users", logs.Items[0].Path)
	assert.Equal(t, http.StatusConflict, logs.Items[0].Status)

	var stored models.AuditLog
	require.NoError(t, e.db.Order("id DESC").First(&stored).Error)
	assert.NotEqual(t, "/api/users", stored.PathEnc, "path is stored encrypted")
}

func TestAuditRedactsPasswords(t *testing.T) {
	// without an encryption key the audit trail is stored in the clear
	e := newTestEnv(t, func(c *config.Config) { c.Security.EncryptionKey = "" })
	testutil.CreateUser(t, e.db, "admin", models.RoleAdmin, nil)
	cookie := e.login("admin")
	lighting := testutil.OfficeByName(t, e.db, "Lighting Office")

	rec := e.do(http.MethodPost, "/api/users", map[string]interface{}{
		"username":   "tecnico",
		"email":      "tecnico@comune.torino.it",
		"first_name": "Paolo",
		"last_name":  "Bianchi",
		"password":   "SuperSecret9",
		"role":       models.RoleTechOfficer,
		"office_id":  lighting.ID,
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var logs struct {
		Items []struct {
			Path   string `json:"path"`
			Action string `json:"action"`
		} `json:"items"`
	}
	decode(t, e.do(http.MethodGet, "/api/logs?method=post", nil, cookie), &logs)
	require.NotEmpty(t, logs.Items)
	assert.Equal(t, "/api/users", logs.Items[0].Path)
	assert.Contains(t, logs.Items[0].Action, `"username":"tecnico"`)
	assert.Contains(t, logs.Items[0].Action, `"password":"[redacted]"`)

	var stored []models.AuditLog
	require.NoError(t, e.db.Find(&stored).Error)
	for _, l := range stored {
		assert.NotContains(t, l.ActionEnc, "SuperSecret9")
	}
}

// ---------- reports ----------

func TestCreateReport(t *testing.T) {
	e := newTestEnv(t)
	testutil.CreateUser(t, e.db, "giulia", models.RoleCitizen, nil)
	cookie := e.login("giulia")
	category := testutil.CategoryByName(t, e.db, "Roads and Urban Furniture")
	fields := withCategory(centerFields, category.ID)

	rec := e.submitReport("", fields, 1)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.submitReport(cookie, fields, 0)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a photo is required")

	rec = e.submitReport(cookie, fields, 4)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "at most three photos")

	outside := withCategory(centerFields, category.ID)
	outside["latitude"] = "41.9028"
	outside["longitude"] = "12.4964"
	rec = e.submitReport(cookie, outside, 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "Rome is outside the municipality")

	rec = e.submitReport(cookie, withCategory(centerFields, 9999), 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.submitReport(cookie, fields, 2)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body reportBody
	decode(t, rec, &body)
	assert.Equal(t, models.StatusPending, body.Report.Status)
	assert.Len(t, body.Report.Photos, 2)

	photo := e.do(http.MethodGet, body.Report.Photos[0].URL, nil, "")
	assert.Equal(t, http.StatusOK, photo.Code)
	assert.Equal(t, testutil.PNG, photo.Body.Bytes())
}

func TestReportVisibility(t *testing.T) {
	e := newTestEnv(t)
	owner := testutil.CreateUser(t, e.db, "owner", models.RoleCitizen, nil)
	testutil.CreateUser(t, e.db, "stranger", models.RoleCitizen, nil)
	testutil.CreateUser(t, e.db, "pr", models.RolePROfficer, nil)
	category := testutil.CategoryByName(t, e.db, "Waste")

	pending := testutil.CreateReport(t, e.db, owner, category, models.StatusPending)
	public := testutil.CreateReport(t, e.db, owner, category, models.StatusAssigned)

	ownerCookie := e.login("owner")
	strangerCookie := e.login("stranger")
	staffCookie := e.login("pr")

	cases := []struct {
		name   string
		cookie string
		want   []uint
	}{
		{"anonymous", "", []uint{public.ID}},
		{"stranger", strangerCookie, []uint{public.ID}},
		{"owner", ownerCookie, []uint{public.ID, pending.ID}},
		{"staff", staffCookie, []uint{public.ID, pending.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var list listBody
			decode(t, e.do(http.MethodGet, "/api/reports", nil, tc.cookie), &list)
			assert.ElementsMatch(t, tc.want, list.ids())
		})
	}

	path := fmt.Sprintf("/api/reports/%d", pending.ID)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, path, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, path, nil, strangerCookie).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, path, nil, ownerCookie).Code)

	filter := fmt.Sprintf("/api/reports?reporter_id=%d", owner.ID)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, filter, nil, strangerCookie).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, filter, nil, staffCookie).Code)

	var mine listBody
	decode(t, e.do(http.MethodGet, "/api/reports/mine", nil, strangerCookie), &mine)
	assert.Empty(t, mine.Items)
}

func TestAnonymousReporterHidden(t *testing.T) {
	e := newTestEnv(t)
	owner := testutil.CreateUser(t, e.db, "owner", models.RoleCitizen, nil)
	testutil.CreateUser(t, e.db, "other", models.RoleCitizen, nil)
	testutil.CreateUser(t, e.db, "pr", models.RolePROfficer, nil)
	report := testutil.CreateReport(t, e.db, owner, testutil.CategoryByName(t, e.db, "Waste"), models.StatusInProgress)
	require.NoError(t, e.db.Model(report).Update("is_anonymous", true).Error)

	path := fmt.Sprintf("/api/reports/%d", report.ID)
	reporterOf := func(cookie string) *idRef {
		var body reportBody
		decode(t, e.do(http.MethodGet, path, nil, cookie), &body)
		return body.Report.Reporter
	}

	assert.Nil(t, reporterOf(""))
	assert.Nil(t, reporterOf(e.login("other")))
	require.NotNil(t, reporterOf(e.login("owner")))
	require.NotNil(t, reporterOf(e.login("pr")))
	assert.Equal(t, owner.ID, reporterOf(e.login("pr")).ID)
}

func TestListReports_GeoFilters(t *testing.T) {
	e := newTestEnv(t)
	owner := testutil.CreateUser(t, e.db, "owner", models.RoleCitizen, nil)
	category := testutil.CategoryByName(t, e.db, "Public Lighting")

	near := testutil.CreateReport(t, e.db, owner, category, models.StatusAssigned)
	nearish := testutil.CreateReport(t, e.db, owner, category, models.StatusAssigned)
	far := testutil.CreateReport(t, e.db, owner, category, models.StatusAssigned)
	require.NoError(t, e.db.Model(nearish).Updates(map[string]interface{}{"latitude": 45.0720, "longitude": 7.6869}).Error)
	require.NoError(t, e.db.Model(far).Updates(map[string]interface{}{"latitude": 45.1100, "longitude": 7.6500}).Error)

	var list listBody
	decode(t, e.do(http.MethodGet, "/api/reports?lat=45.0703&lng=7.6869&radius=500", nil, ""), &list)
	require.Equal(t, []uint{near.ID, nearish.ID}, list.ids(), "nearest first")
	require.NotNil(t, list.Items[0].DistanceMeters)
	assert.InDelta(t, 0, *list.Items[0].DistanceMeters, 1)
	assert.InDelta(t, 189, *list.Items[1].DistanceMeters, 5)

	list = listBody{}
	decode(t, e.do(http.MethodGet, "/api/reports?min_lat=45.1&min_lng=7.6&max_lat=45.2&max_lng=7.7", nil, ""), &list)
	assert.Equal(t, []uint{far.ID}, list.ids())

	var points struct {
		Items []struct {
			ID uint `json:"id"`
		} `json:"items"`
	}
	decode(t, e.do(http.MethodGet, "/api/reports/map?lat=45.0703&lng=7.6869&radius=100", nil, ""), &points)
	require.Len(t, points.Items, 1)
	assert.Equal(t, near.ID, points.Items[0].ID)

	for _, q := range []string{"lat=45&lng=7", "radius=0&lat=45&lng=7", "min_lat=46&min_lng=7&max_lat=45&max_lng=8", "status=bogus",
		"lat=45.07&lng=7.68&radius=NaN", "lat=NaN&lng=7.68&radius=100", "min_lat=45&min_lng=-Inf&max_lat=46&max_lng=8"} {
		assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/reports?"+q, nil, "").Code, q)
	}
}

func TestReportWorkflow(t *testing.T) {
	e := newTestEnv(t)
	citizen := testutil.CreateUser(t, e.db, "citizen", models.RoleCitizen, nil)
	testutil.CreateUser(t, e.db, "pr", models.RolePROfficer, nil)
	lighting := testutil.CategoryByName(t, e.db, "Public Lighting")
	waste := testutil.CategoryByName(t, e.db, "Waste")
	testutil.CreateUser(t, e.db, "tech", models.RoleTechOfficer, &lighting.OfficeID)
	testutil.CreateUser(t, e.db, "wastetech", models.RoleTechOfficer, &waste.OfficeID)
	external := testutil.OfficeByName(t, e.db, "Lumen Maintenance")
	maintainer := testutil.CreateUser(t, e.db, "lumen", models.RoleExternalMaintainer, &external.ID)

	citizenCookie := e.login("citizen")
	prCookie := e.login("pr")
	techCookie := e.login("tech")
	wasteCookie := e.login("wastetech")
	maintainerCookie := e.login("lumen")

	// filed under the wrong category, corrected on approval
	rec := e.submitReport(citizenCookie, withCategory(centerFields, waste.ID), 1)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created reportBody
	decode(t, rec, &created)
	base := fmt.Sprintf("/api/reports/%d", created.Report.ID)

	rec = e.do(http.MethodPost, base+"/status", map[string]string{"status": models.StatusInProgress}, techCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code, "pending reports belong to no office")

	rec = e.do(http.MethodPost, base+"/review", map[string]interface{}{"action": "approve", "category_id": lighting.ID}, prCookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var approved reportBody
	decode(t, rec, &approved)
	assert.Equal(t, models.StatusAssigned, approved.Report.Status)
	require.NotNil(t, approved.Report.AssignedOffice)
	assert.Equal(t, lighting.OfficeID, approved.Report.AssignedOffice.ID)

	rec = e.do(http.MethodPost, base+"/review", map[string]string{"action": "approve"}, prCookie)
	assert.Equal(t, http.StatusConflict, rec.Code, "already reviewed")

	var queue listBody
	decode(t, e.do(http.MethodGet, "/api/reports/assigned", nil, techCookie), &queue)
	assert.Equal(t, []uint{created.Report.ID}, queue.ids())
	queue = listBody{}
	decode(t, e.do(http.MethodGet, "/api/reports/assigned", nil, wasteCookie), &queue)
	assert.Empty(t, queue.Items)

	rec = e.do(http.MethodPost, base+"/status", map[string]string{"status": models.StatusInProgress}, wasteCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code, "another office")

	rec = e.do(http.MethodPost, base+"/status", map[string]string{"status": models.StatusResolved}, techCookie)
	assert.Equal(t, http.StatusConflict, rec.Code, "assigned cannot jump to resolved")

	rec = e.do(http.MethodPost, base+"/status", map[string]string{"status": models.StatusRejected}, techCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, base+"/assign", map[string]interface{}{"maintainer_id": citizen.ID}, techCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "citizens are not maintainers")

	rec = e.do(http.MethodPost, base+"/assign", map[string]interface{}{"maintainer_id": maintainer.ID}, techCookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	queue = listBody{}
	decode(t, e.do(http.MethodGet, "/api/reports/assigned", nil, maintainerCookie), &queue)
	assert.Equal(t, []uint{created.Report.ID}, queue.ids())

	for _, to := range []string{models.StatusInProgress, models.StatusSuspended, models.StatusInProgress, models.StatusResolved} {
		rec = e.do(http.MethodPost, base+"/status", map[string]string{"status": to}, maintainerCookie)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", to, rec.Body.String())
	}

	var final models.Report
	require.NoError(t, e.db.First(&final, created.Report.ID).Error)
	assert.Equal(t, models.StatusResolved, final.Status)
	assert.NotNil(t, final.ResolvedAt)

	// approve, in_progress, suspended, in_progress, resolved
	require.Eventually(t, func() bool {
		var n int64
		e.db.Model(&models.Notification{}).Where("user_id = ?", citizen.ID).Count(&n)
		return n == 5
	}, 2*time.Second, 10*time.Millisecond)

	var notes struct {
		Items []struct {
			Kind string `json:"kind"`
		} `json:"items"`
		Unread int64 `json:"unread"`
	}
	decode(t, e.do(http.MethodGet, "/api/notifications?unread=true", nil, citizenCookie), &notes)
	assert.EqualValues(t, 5, notes.Unread)
	assert.Equal(t, models.NotificationStatusChange, notes.Items[0].Kind)
}

func TestReview_Reject(t *testing.T) {
	e := newTestEnv(t)
	citizen := testutil.CreateUser(t, e.db, "citizen", models.RoleCitizen, nil)
	testutil.CreateUser(t, e.db, "pr", models.RolePROfficer, nil)
	report := testutil.CreateReport(t, e.db, citizen, testutil.CategoryByName(t, e.db, "Waste"), models.StatusPending)
	cookie := e.login("pr")
	path := fmt.Sprintf("/api/reports/%d/review", report.ID)

	rec := e.do(http.MethodPost, path, map[string]string{"action": "reject"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason required")

	rec = e.do(http.MethodPost, path, map[string]string{"action": "maybe"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, path, map[string]string{"action": "reject", "reason": "Duplicate of #12"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body reportBody
	decode(t, rec, &body)
	assert.Equal(t, models.StatusRejected, body.Report.Status)
	assert.Equal(t, "Duplicate of #12", body.Report.RejectionReason)

	require.Eventually(t, func() bool {
		var n models.Notification
		if err := e.db.Where("user_id = ?", citizen.ID).First(&n).Error; err != nil {
			return false
		}
		return strings.Contains(n.Body, "Duplicate of #12")
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, fmt.Sprintf("/api/reports/%d", report.ID), nil, "").Code)
}

// ---------- threads ----------

func TestCommentsAreStaffOnly(t *testing.T) {
	e := newTestEnv(t)
	owner := testutil.CreateUser(t, e.db, "owner", models.RoleCitizen, nil)
	category := testutil.CategoryByName(t, e.db, "Waste")
	testutil.CreateUser(t, e.db, "tech", models.RoleTechOfficer, &category.OfficeID)
	report := testutil.CreateReport(t, e.db, owner, category, models.StatusAssigned)
	path := fmt.Sprintf("/api/reports/%d/comments", report.ID)

	ownerCookie := e.login("owner")
	techCookie := e.login("tech")

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, path, nil, ownerCookie).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, path, map[string]string{"body": "hi"}, ownerCookie).Code)

	rec := e.do(http.MethodPost, path, map[string]string{"body": "   "}, techCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, path, map[string]string{"body": "Need a lift truck"}, techCookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var list struct {
		Items []struct {
			Body string `json:"body"`
		} `json:"items"`
	}
	decode(t, e.do(http.MethodGet, path, nil, techCookie), &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Need a lift truck", list.Items[0].Body)

	rec = e.do(http.MethodGet, "/api/reports/9999/comments", nil, techCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessages(t *testing.T) {
	e := newTestEnv(t)
	owner := testutil.CreateUser(t, e.db, "owner", models.RoleCitizen, nil)
	testutil.CreateUser(t, e.db, "stranger", models.RoleCitizen, nil)
	category := testutil.CategoryByName(t, e.db, "Public Lighting")
	tech := testutil.CreateUser(t, e.db, "tech", models.RoleTechOfficer, &category.OfficeID)
	report := testutil.CreateReport(t, e.db, owner, category, models.StatusInProgress)
	path := fmt.Sprintf("/api/reports/%d/messages", report.ID)

	ownerCookie := e.login("owner")
	techCookie := e.login("tech")
	strangerCookie := e.login("stranger")

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, path, nil, "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, path, nil, strangerCookie).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, path, map[string]string{"body": "hello"}, strangerCookie).Code)

	rec := e.do(http.MethodPost, path, map[string]string{"body": "We are on it"}, techCookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = e.do(http.MethodPost, path, map[string]string{"body": "Thanks!"}, ownerCookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var list struct {
		Items []struct {
			Body string `json:"body"`
		} `json:"items"`
	}
	decode(t, e.do(http.MethodGet, path, nil, ownerCookie), &list)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "We are on it", list.Items[0].Body)

	// staff message reaches the reporter, the reply reaches the staff author
	for _, uid := range []uint{owner.ID, tech.ID} {
		require.Eventually(t, func() bool {
			var n int64
			e.db.Model(&models.Notification{}).
				Where("user_id = ? AND kind = ?", uid, models.NotificationMessage).
				Count(&n)
			return n == 1
		}, 2*time.Second, 10*time.Millisecond, "user %d", uid)
	}
}

// ---------- notifications ----------

func TestNotificationsReadState(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db, "alice", models.RoleCitizen, nil)
	bob := testutil.CreateUser(t, e.db, "bob", models.RoleCitizen, nil)

	mine := []models.Notification{
		{UserID: alice.ID, Kind: models.NotificationStatusChange, Title: "one"},
		{UserID: alice.ID, Kind: models.NotificationStatusChange, Title: "two"},
	}
	require.NoError(t, e.db.Create(&mine).Error)
	theirs := models.Notification{UserID: bob.ID, Kind: models.NotificationMessage, Title: "bob's"}
	require.NoError(t, e.db.Create(&theirs).Error)

	cookie := e.login("alice")

	rec := e.do(http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", theirs.ID), nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", mine[0].ID), nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Items []struct {
			Title string `json:"title"`
			Read  bool   `json:"read"`
		} `json:"items"`
		Total  int64 `json:"total"`
		Unread int64 `json:"unread"`
	}
	decode(t, e.do(http.MethodGet, "/api/notifications?unread=true", nil, cookie), &list)
	require.EqualValues(t, 1, list.Total)
	assert.Equal(t, "two", list.Items[0].Title)

	var all struct {
		Updated int64 `json:"updated"`
	}
	decode(t, e.do(http.MethodPost, "/api/notifications/read-all", nil, cookie), &all)
	assert.EqualValues(t, 1, all.Updated)

	var still models.Notification
	require.NoError(t, e.db.First(&still, theirs.ID).Error)
	assert.Nil(t, still.ReadAt, "other users' notifications untouched")
}

// ---------- export ----------

func TestExport(t *testing.T) {
	e := newTestEnv(t)
	owner := testutil.CreateUser(t, e.db, "owner", models.RoleCitizen, nil)
	testutil.CreateUser(t, e.db, "pr", models.RolePROfficer, nil)
	category := testutil.CategoryByName(t, e.db, "Waste")
	testutil.CreateReport(t, e.db, owner, category, models.StatusPending)
	anon := testutil.CreateReport(t, e.db, owner, category, models.StatusAssigned)
	require.NoError(t, e.db.Model(anon).Updates(map[string]interface{}{
		"is_anonymous": true,
		"title":        `=HYPERLINK("http://evil.example","click")`,
		"address":      "-2+3",
		"longitude":    -7.5,
	}).Error)
	cookie := e.login("pr")

	rec := e.do(http.MethodGet, "/api/reports/export.csv", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	body := rec.Body.Bytes()
	require.True(t, bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}))

	rows, err := csv.NewReader(bytes.NewReader(body[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, fmt.Sprint(anon.ID), rows[1][0], "newest first")
	assert.Equal(t, "anonymous", rows[1][7])
	assert.Equal(t, "owner", rows[2][7])
	assert.Equal(t, `'=HYPERLINK("http://evil.example","click")`, rows[1][1], "formulas are neutralised")
	assert.Equal(t, "'-2+3", rows[1][6])
	assert.Equal(t, "-7.500000", rows[1][5], "negative numbers stay numeric")

	rec = e.do(http.MethodGet, "/api/reports/export.csv?status=pending", nil, cookie)
	rows, err = csv.NewReader(bytes.NewReader(rec.Body.Bytes()[3:])).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/reports/export.csv?start=yesterday", nil, cookie).Code)

	rec = e.do(http.MethodGet, "/api/reports/export.xlsx", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	sheet, err := f.GetRows("Reports")
	require.NoError(t, err)
	require.Len(t, sheet, 3)
	assert.Equal(t, "Status", sheet[0][3])
	assert.Equal(t, `=HYPERLINK("http://evil.example","click")`, sheet[1][1], "xlsx cells are plain strings")
}

// ---------- taxonomy ----------

func TestTaxonomy(t *testing.T) {
	e := newTestEnv(t)

	var offices struct {
		Items []struct {
			Name       string `json:"name"`
			IsExternal bool   `json:"is_external"`
		} `json:"items"`
	}
	decode(t, e.do(http.MethodGet, "/api/offices?external=true", nil, ""), &offices)
	require.Len(t, offices.Items, 2)
	for _, o := range offices.Items {
		assert.True(t, o.IsExternal, o.Name)
	}

	var categories struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	decode(t, e.do(http.MethodGet, "/api/categories", nil, ""), &categories)
	assert.Len(t, categories.Items, 9)
}
