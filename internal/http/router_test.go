package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/civic-report-service/internal/auth"
	"github.com/tbourn/civic-report-service/internal/config"
	"github.com/tbourn/civic-report-service/internal/domain"
	"github.com/tbourn/civic-report-service/internal/http/middleware"
	"github.com/tbourn/civic-report-service/internal/repo"
)

const testSecret = "router-test-secret"

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:routerdb_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func baseCfg() config.Config {
	return config.Config{
		APIBasePath:        "/api/v1",
		RateRPS:            100,
		RateBurst:          100,
		MaxBodyBytes:       1 << 20,
		Auth:               config.AuthConfig{JWTSecret: testSecret},
		Upload:             config.UploadConfig{MaxImageBytes: 1 << 16, PlaceholderURL: "https://placehold.co/600x400?text=Upload+Failed"},
		DuplicateTolerance: 0.0003,
		IdempotencyTTL:     time.Hour,
		OTEL:               config.OTELConfig{ServiceName: "test-svc"},
	}
}

// --- fake collaborators ---

type fakeCollab struct {
	mu       sync.Mutex
	category string
	events   []domain.Event
}

func (f *fakeCollab) Upload(context.Context, domain.Image) (string, error) {
	return "https://storage.example/civic/x.jpg", nil
}

func (f *fakeCollab) Categorize(context.Context, domain.Image) (string, error) {
	return f.category, nil
}

func (f *fakeCollab) AssessPriority(context.Context, string) (string, error) { return "high", nil }

func (f *fakeCollab) Notify(_ context.Context, ev domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeCollab) collaborators() Collaborators {
	return Collaborators{Uploader: f, Classifier: f, Notifier: f}
}

func bearer(t *testing.T, uid int64, role domain.Role) string {
	t.Helper()
	tok, err := auth.Sign(testSecret, uid, role)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + tok
}

func submitReq(t *testing.T, token string, lat, lon string, withImage bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "Pothole")
	_ = mw.WriteField("description", "Large pothole near the crossing")
	_ = mw.WriteField("latitude", lat)
	_ = mw.WriteField("longitude", lon)
	if withImage {
		fw, _ := mw.CreateFormFile("image", "hole.jpg")
		_, _ = fw.Write([]byte("\xff\xd8\xff\xe0fake-jpeg"))
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/issues", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), Collaborators{}, baseCfg())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	var hr struct {
		Status       string   `json:"status"`
		DatabaseType string   `json:"database_type"`
		Tables       []string `json:"tables"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &hr); err != nil || hr.Status != "connected" || hr.DatabaseType != "sqlite" || len(hr.Tables) == 0 {
		t.Fatalf("health body=%s err=%v", w.Body.String(), err)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/health/live", nil)); w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("alive")) {
		t.Fatalf("GET /health/live = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/nope", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := serve(r, httptest.NewRequest(http.MethodPost, "/health", nil)); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// Swagger is off unless enabled.
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseCfg()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	RegisterRoutes(r, newTestDB(t), Collaborators{}, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("Origin", "http://example.com")
	w := serve(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health/live = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_SwaggerEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseCfg()
	cfg.SwaggerEnabled = true
	RegisterRoutes(r, newTestDB(t), Collaborators{}, cfg)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("/issues/{id}/confirm")) {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
}

func TestRoutes_SubmitDuplicateScenario(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	fc := &fakeCollab{category: "Pothole"}
	r := gin.New()
	RegisterRoutes(r, db, fc.collaborators(), baseCfg())

	// Existing open Pothole with id 100.
	if err := db.Exec(`INSERT INTO issues (issue_id, reporter_id, title, latitude, longitude, category, priority, status, created_at, updated_at)
		VALUES (100, 1, 'Pothole', 40.7130, -74.0058, 'Pothole', 'high', 'open', ?, ?)`, time.Now(), time.Now()).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := serve(r, submitReq(t, bearer(t, 2, "User"), "40.7129", "-74.0059", true))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		IssueID     int64  `json:"issue_id"`
		Message     string `json:"message"`
		IsDuplicate bool   `json:"is_duplicate"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.IssueID != 100 || !resp.IsDuplicate {
		t.Fatalf("expected duplicate of 100, got %+v", resp)
	}

	var issues, confirmations int64
	db.Model(&domain.Issue{}).Count(&issues)
	db.Model(&domain.Confirmation{}).Count(&confirmations)
	if issues != 1 || confirmations != 1 {
		t.Fatalf("issues=%d confirmations=%d; want 1/1", issues, confirmations)
	}
	if len(fc.events) != 1 || fc.events[0].Type != domain.EventConfirmIssue || fc.events[0].UserID != 2 {
		t.Fatalf("events=%+v", fc.events)
	}

	// A far-away report is a new issue.
	w = serve(r, submitReq(t, bearer(t, 2, "User"), "40.7128", "-74.0160", true))
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusAccepted || resp.IsDuplicate || resp.IssueID == 100 {
		t.Fatalf("new report: %d %+v", w.Code, resp)
	}
}

func TestRoutes_AuthGates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	r := gin.New()
	RegisterRoutes(r, db, Collaborators{}, baseCfg())

	is := &domain.Issue{ReporterID: 1, Title: "Lamp", Latitude: 1, Longitude: 1}
	if err := repo.CreateIssue(context.Background(), db, is); err != nil {
		t.Fatalf("seed: %v", err)
	}
	statusPath := fmt.Sprintf("/api/v1/issues/%d/status", is.IssueID)

	// No token on a user route.
	if w := serve(r, submitReq(t, "", "1", "1", false)); w.Code != http.StatusUnauthorized {
		t.Fatalf("submit without token: %d", w.Code)
	}

	// Citizen cannot change status.
	req := httptest.NewRequest(http.MethodPut, statusPath, bytes.NewBufferString(`{"status":"resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, 9, "User"))
	if w := serve(r, req); w.Code != http.StatusForbidden {
		t.Fatalf("citizen PUT status: %d", w.Code)
	}

	// Employee can.
	req = httptest.NewRequest(http.MethodPut, statusPath, bytes.NewBufferString(`{"status":"in_progress"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, 3, domain.RoleCityEmployee))
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Fatalf("employee PUT status: %d %s", w.Code, w.Body.String())
	}

	// Public reads.
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/issues/999", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("GET /issues/999: %d", w.Code)
	}
	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/issues?status=in_progress", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"title":"Lamp"`)) {
		t.Fatalf("GET /issues: %d %s", w.Code, w.Body.String())
	}
}

func TestRoutes_IdempotentReplayAndRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	cfg := baseCfg()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r := gin.New()
	RegisterRoutes(r, db, Collaborators{}, cfg)
	tok := bearer(t, 4, "User")

	first := submitReq(t, tok, "10", "10", false)
	first.Header.Set(middleware.HeaderIdempotencyKey, "retry-1")
	w := serve(r, first)
	if w.Code != http.StatusAccepted {
		t.Fatalf("first: %d %s", w.Code, w.Body.String())
	}

	// Replay bypasses the exhausted bucket and returns the stored outcome.
	again := submitReq(t, tok, "10", "10", false)
	again.Header.Set(middleware.HeaderIdempotencyKey, "retry-1")
	w2 := serve(r, again)
	if w2.Code != http.StatusAccepted || w2.Header().Get("Idempotency-Replayed") != "true" || w2.Body.String() != w.Body.String() {
		t.Fatalf("replay: %d %q %s", w2.Code, w2.Header().Get("Idempotency-Replayed"), w2.Body.String())
	}

	// A fresh submission hits the limiter.
	if w := serve(r, submitReq(t, tok, "20", "20", false)); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	var n int64
	db.Model(&domain.Issue{}).Count(&n)
	if n != 1 {
		t.Fatalf("issues=%d; want 1", n)
	}

	// Malformed key is rejected before the handler.
	bad := submitReq(t, tok, "10", "10", false)
	bad.Header.Set(middleware.HeaderIdempotencyKey, "has space")
	if w := serve(r, bad); w.Code != http.StatusBadRequest {
		t.Fatalf("bad key: %d", w.Code)
	}
}

func Test_idempotencyShim_Proxies(t *testing.T) {
	db := newTestDB(t)
	shim := idempotencyShim{db: db}
	ctx := context.Background()

	if _, err := shim.Get(ctx, 1, "k", time.Now()); err == nil {
		t.Fatalf("expected not found")
	}
	res := repo.IdempotentResult{IssueID: 5, Message: "m", Status: http.StatusAccepted}
	if err := shim.Put(ctx, 1, "k", res, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rec, err := shim.Get(ctx, 1, "k", time.Now())
	if err != nil || rec.IssueID != 5 {
		t.Fatalf("Get: %+v %v", rec, err)
	}
	if err := shim.Put(ctx, 1, "k", res, time.Hour); err != repo.ErrDuplicate {
		t.Fatalf("second Put: %v", err)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := serve(r, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB"))) // 12 bytes
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestRoutes_ListETagTracksCommentsAndConfirmations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	r := gin.New()
	RegisterRoutes(r, db, Collaborators{}, baseCfg())

	if w := serve(r, submitReq(t, bearer(t, 1, "User"), "10", "10", false)); w.Code != http.StatusAccepted {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	first := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/issues", nil))
	var list struct {
		Issues []struct {
			IssueID int64 `json:"issue_id"`
		} `json:"issues"`
	}
	_ = json.Unmarshal(first.Body.Bytes(), &list)
	if first.Code != http.StatusOK || len(list.Issues) != 1 {
		t.Fatalf("list: %d %s", first.Code, first.Body.String())
	}
	id := list.Issues[0].IssueID

	conditional := func(etag string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/issues", nil)
		req.Header.Set("If-None-Match", etag)
		return serve(r, req)
	}

	etag := first.Header().Get("ETag")
	if w := conditional(etag); w.Code != http.StatusNotModified {
		t.Fatalf("unchanged list should be 304, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/issues/%d/comments", id),
		bytes.NewBufferString(`{"text":"Still there this morning."}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, 2, "User"))
	if w := serve(r, req); w.Code != http.StatusCreated {
		t.Fatalf("comment: %d %s", w.Code, w.Body.String())
	}

	w := conditional(etag)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("Still there this morning.")) {
		t.Fatalf("after comment: %d %s", w.Code, w.Body.String())
	}
	etag = w.Header().Get("ETag")

	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/issues/%d/confirm", id), nil)
	req.Header.Set("Authorization", bearer(t, 3, "User"))
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", w.Code, w.Body.String())
	}

	w = conditional(etag)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"confirmation_count":1`)) {
		t.Fatalf("after confirm: %d %s", w.Code, w.Body.String())
	}
}
