package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"forum/auth"
	"forum/config"
	"forum/content"
	"forum/database"
	"forum/media"
	"forum/metrics"
	"forum/models"

	"golang.org/x/crypto/bcrypt"
)

// MockApplication holds dependencies for handler tests.
type MockApplication struct {
	db          *database.DatabaseService
	content     *content.Service
	auth        *auth.Service
	rateLimiter *models.RateLimiter
	metrics     *metrics.Metrics
	uploadDir   string
	avatarDir   string
	trustProxy  bool
	logger      *slog.Logger
}

func (a *MockApplication) Content() *content.Service        { return a.content }
func (a *MockApplication) Auth() *auth.Service              { return a.auth }
func (a *MockApplication) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *MockApplication) Metrics() *metrics.Metrics        { return a.metrics }
func (a *MockApplication) Logger() *slog.Logger             { return a.logger }
func (a *MockApplication) UploadDir() string                { return a.uploadDir }
func (a *MockApplication) AvatarDir() string                { return a.avatarDir }
func (a *MockApplication) SessionTTL() time.Duration        { return time.Hour }
func (a *MockApplication) SecureCookies() bool              { return false }
func (a *MockApplication) TrustProxy() bool                 { return a.trustProxy }

// setupTestApp creates a full application stack with a temporary database
// and local media directories.
func setupTestApp(t *testing.T) *MockApplication {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dir := t.TempDir()

	dbService, err := database.InitDB(filepath.Join(dir, "test.db?_journal_mode=WAL&_foreign_keys=on"), logger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { dbService.Close() })

	app := &MockApplication{
		db:          dbService,
		rateLimiter: models.NewRateLimiter(time.Millisecond, 100, time.Hour, 24*time.Hour),
		metrics:     metrics.New(),
		uploadDir:   filepath.Join(dir, "uploads"),
		avatarDir:   filepath.Join(dir, "avatars"),
		logger:      logger,
	}

	uploadBackend, err := media.NewLocalStorage(app.uploadDir, "/uploads")
	if err != nil {
		t.Fatalf("Failed to create upload storage: %v", err)
	}
	avatarBackend, err := media.NewLocalStorage(app.avatarDir, "/avatars")
	if err != nil {
		t.Fatalf("Failed to create avatar storage: %v", err)
	}
	uploads := media.NewStore(uploadBackend, "uploads", config.AllowedExtensions, logger)
	avatars := media.NewStore(avatarBackend, "avatars", config.AvatarExtensions, logger)
	app.content = content.NewService(dbService, uploads, avatars, app.metrics, logger)

	app.auth = auth.NewService(dbService, "test-secret", time.Hour, logger)
	app.auth.Cost = bcrypt.MinCost
	if _, err := app.auth.SeedAdmin(context.Background(), "root", "rootpass"); err != nil {
		t.Fatalf("Failed to seed admin: %v", err)
	}
	return app
}

// page is the subset of the JSON view models the tests inspect.
type page struct {
	Flashes     []Flash              `json:"flashes"`
	CSRFToken   string               `json:"csrf_token"`
	CurrentUser *models.User         `json:"current_user"`
	Error       string               `json:"error"`
	Boards      []models.Board       `json:"boards"`
	Board       *models.Board        `json:"board"`
	Posts       []models.Post        `json:"posts"`
	Post        *models.Post         `json:"post"`
	CanDelete   bool                 `json:"can_delete"`
	Profile     *models.Profile      `json:"profile"`
	Actions     []models.AdminAction `json:"actions"`

	status int
}

// hasFlash reports whether a flash of the given kind and text is present.
func (p *page) hasFlash(kind, text string) bool {
	for _, f := range p.Flashes {
		if f.Kind == kind && f.Text == text {
			return true
		}
	}
	return false
}

// testClient is a browser-like client: it keeps cookies and follows the
// 303 redirects that POST handlers answer with.
type testClient struct {
	t      *testing.T
	server *httptest.Server
	http   *http.Client
}

func newTestServer(t *testing.T, app *MockApplication) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(SetupRouter(app, ""))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *testClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	return &testClient{t: t, server: server, http: &http.Client{Jar: jar}}
}

func (c *testClient) decode(resp *http.Response) *page {
	c.t.Helper()
	defer resp.Body.Close()
	p := &page{status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(p); err != nil {
		c.t.Fatalf("Failed to decode page from %s (status %d): %v", resp.Request.URL.Path, resp.StatusCode, err)
	}
	return p
}

func (c *testClient) get(path string) *page {
	c.t.Helper()
	resp, err := c.http.Get(c.server.URL + path)
	if err != nil {
		c.t.Fatalf("GET %s failed: %v", path, err)
	}
	return c.decode(resp)
}

// csrf fetches the front page to obtain the CSRF token bound to the cookie.
func (c *testClient) csrf() string {
	c.t.Helper()
	token := c.get("/").CSRFToken
	if token == "" {
		c.t.Fatal("Expected a CSRF token on the front page")
	}
	return token
}

// post submits a urlencoded form with a valid CSRF token.
func (c *testClient) post(path string, values url.Values) *page {
	c.t.Helper()
	if values == nil {
		values = url.Values{}
	}
	values.Set("csrf_token", c.csrf())
	resp, err := c.http.PostForm(c.server.URL+path, values)
	if err != nil {
		c.t.Fatalf("POST %s failed: %v", path, err)
	}
	return c.decode(resp)
}

// postMultipart submits a multipart form with one optional file field.
func (c *testClient) postMultipart(path string, fields map[string]string, fileField, fileName string, data []byte) *page {
	c.t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			c.t.Fatalf("WriteField failed: %v", err)
		}
	}
	if err := writer.WriteField("csrf_token", c.csrf()); err != nil {
		c.t.Fatalf("WriteField failed: %v", err)
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			c.t.Fatalf("CreateFormFile failed: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			c.t.Fatalf("Failed to write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		c.t.Fatalf("Failed to close multipart writer: %v", err)
	}
	resp, err := c.http.Post(c.server.URL+path, writer.FormDataContentType(), body)
	if err != nil {
		c.t.Fatalf("POST %s failed: %v", path, err)
	}
	return c.decode(resp)
}

// login registers the user when needed and logs in.
func (c *testClient) login(username, password string) *models.User {
	c.t.Helper()
	c.post("/register", url.Values{"username": {username}, "password": {password}})
	p := c.post("/login", url.Values{"username": {username}, "password": {password}})
	if p.CurrentUser == nil || p.CurrentUser.Username != username {
		c.t.Fatalf("Expected to be logged in as %s, flashes: %+v", username, p.Flashes)
	}
	return p.CurrentUser
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}
