package httpapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-clinic-api/internal/config"
	"github.com/tbourn/go-clinic-api/internal/http/handlers"
	"github.com/tbourn/go-clinic-api/internal/http/middleware"
	"github.com/tbourn/go-clinic-api/internal/repo"
	"github.com/tbourn/go-clinic-api/internal/services"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:router_" + name + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestStore(t *testing.T) *repo.FileStore {
	t.Helper()
	s := repo.NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	if err := s.Init(); err != nil {
		t.Fatalf("init file store: %v", err)
	}
	return s
}

func testConfig() config.Config {
	return config.Config{
		Env:         config.EnvTest,
		APIBasePath: "/api/v1",
		BodyLimit:   1 << 20,
		RateRPS:     1000,
		RateBurst:   1000,
		Auth:        config.AuthConfig{JWTSecret: "router-secret", JWTExpiration: time.Hour, BcryptCost: 4},
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // allow-all branch
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, newTestStore(t), cfg)
	return r, db
}

func send(r http.Handler, method, target string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorBody {
	t.Helper()
	var b middleware.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return b
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := send(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("GET /health = %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = send(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = send(r, http.MethodGet, "/nope?x=1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	b := decodeError(t, w)
	if b.Status != "error" || b.StatusCode != 404 || b.Message != "Ruta no encontrada: GET /nope?x=1" || b.Path != "/nope?x=1" || b.Method != "GET" {
		t.Fatalf("unexpected 404 body: %+v", b)
	}
	if b.Stack != "" || b.Error != nil {
		t.Fatalf("debug fields must be absent outside development: %+v", b)
	}

	w = send(r, http.MethodPost, "/health", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if b := decodeError(t, w); b.Message != "Método no permitido: POST /health" {
		t.Fatalf("unexpected 405 message: %q", b.Message)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newRouter(t, cfg)

	w := send(r, http.MethodGet, "/health", nil, "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	// The API is mounted under the configured prefix.
	if w := send(r, http.MethodGet, "/api/v2/doctors", nil); w.Code != http.StatusOK {
		t.Fatalf("GET /api/v2/doctors = %d", w.Code)
	}
	if w := send(r, http.MethodGet, "/api/v1/doctors", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /api/v1/doctors should not exist, got %d", w.Code)
	}
}

func TestPipeline_Smoke(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	r, _ := newRouter(t, cfg)

	w := send(r, http.MethodGet, "/health", nil, "X-Forwarded-Proto", "https")
	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing: %v", w.Header())
	}
	if !strings.HasPrefix(w.Header().Get("Strict-Transport-Security"), "max-age=3600") {
		t.Fatalf("HSTS expected for https, got %q", w.Header().Get("Strict-Transport-Security"))
	}
	if got := w.Header().Get("Cache-Control"); got != "private, no-cache" {
		t.Fatalf("Cache-Control = %q", got)
	}
}

func TestRegisterRoutes_ClinicFlow(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := send(r, http.MethodPost, "/api/v1/doctors", map[string]any{
		"firstName": "maría", "lastName": "lópez", "specialization": "Cardiología",
		"licenseNumber": "LIC-1", "email": "maria@clinic.test", "yearsOfExperience": 8,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create doctor = %d %s", w.Code, w.Body.String())
	}
	var doc struct {
		Data handlers.DoctorData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode doctor: %v", err)
	}

	w = send(r, http.MethodPost, "/api/v1/patients", map[string]any{
		"firstName": "Juan", "lastName": "Pérez", "documentNumber": "DOC-1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create patient = %d %s", w.Code, w.Body.String())
	}
	var pat struct {
		Data handlers.PatientData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &pat); err != nil {
		t.Fatalf("decode patient: %v", err)
	}

	slot := time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)
	book := map[string]any{
		"patientId": pat.Data.Patient.ID, "doctorId": doc.Data.Doctor.ID,
		"dateTime": slot.Format(time.RFC3339),
	}
	if w := send(r, http.MethodPost, "/api/v1/appointments", book); w.Code != http.StatusCreated {
		t.Fatalf("book = %d %s", w.Code, w.Body.String())
	}

	book["dateTime"] = slot.Add(10 * time.Minute).Format(time.RFC3339)
	w = send(r, http.MethodPost, "/api/v1/appointments", book)
	if w.Code != http.StatusConflict {
		t.Fatalf("overlap expected 409, got %d %s", w.Code, w.Body.String())
	}
	if b := decodeError(t, w); b.Message != "El doctor ya tiene una cita programada en ese horario" || b.Detail != nil {
		t.Fatalf("unexpected conflict body: %+v", b)
	}

	// The search route is not captured by the /:id UUID check.
	if w := send(r, http.MethodGet, "/api/v1/doctors/search?q=lopez", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), doc.Data.Doctor.ID) {
		t.Fatalf("search = %d %s", w.Code, w.Body.String())
	}
	if w := send(r, http.MethodPatch, "/api/v1/patients/"+pat.Data.Patient.ID, map[string]any{"phone": "3001234567"}); w.Code != http.StatusOK {
		t.Fatalf("patch patient = %d %s", w.Code, w.Body.String())
	}

	// Malformed path id and duplicate license go through the same pipeline.
	if w := send(r, http.MethodGet, "/api/v1/doctors/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id expected 400, got %d", w.Code)
	}
	w = send(r, http.MethodPost, "/api/v1/doctors", map[string]any{
		"firstName": "Otro", "lastName": "Doctor", "specialization": "Pediatría",
		"licenseNumber": "LIC-1", "email": "otro@clinic.test",
	})
	if w.Code != http.StatusConflict || !strings.Contains(decodeError(t, w).Message, "ya está registrado") {
		t.Fatalf("duplicate license expected 409, got %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_FileUsers(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := send(r, http.MethodPost, "/api/v1/users", map[string]any{"name": "Ana", "email": "ana@example.com"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create file user = %d %s", w.Code, w.Body.String())
	}
	if w := send(r, http.MethodGet, "/api/v1/users/1", nil); w.Code != http.StatusOK {
		t.Fatalf("get file user = %d %s", w.Code, w.Body.String())
	}
	if w := send(r, http.MethodGet, "/api/v1/users/99", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing file user expected 404, got %d", w.Code)
	}
}

func TestRegisterRoutes_DbUsersAuth(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := send(r, http.MethodPost, "/api/v1/db-users", map[string]any{
		"email": "ana@example.com", "username": "ana", "password": "secreto123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", w.Code, w.Body.String())
	}

	w = send(r, http.MethodGet, "/api/v1/db-users", nil)
	if w.Code != http.StatusUnauthorized || decodeError(t, w).Message != "Token de acceso requerido" {
		t.Fatalf("list without token: %d %s", w.Code, w.Body.String())
	}

	w = send(r, http.MethodPost, "/api/v1/db-users/login", map[string]any{"email": "ana@example.com", "password": "secreto123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d %s", w.Code, w.Body.String())
	}
	var login struct {
		Data handlers.LoginData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil || login.Data.Token == "" {
		t.Fatalf("login body %s: %v", w.Body.String(), err)
	}

	w = send(r, http.MethodGet, "/api/v1/db-users", nil, "Authorization", "Bearer "+login.Data.Token)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"results":1`) {
		t.Fatalf("authenticated list = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_DeleteDbUserRequiresAdmin(t *testing.T) {
	cfg := testConfig()
	r, db := newRouter(t, cfg)
	accounts := services.NewUserService(db, repo.Gorm{}, nil, cfg.Auth.BcryptCost)
	if _, err := accounts.EnsureAdmin(context.Background(), "root@example.com", "root", "secreto123"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	login := func(email, username string, register bool) (id, token string) {
		t.Helper()
		if register {
			w := send(r, http.MethodPost, "/api/v1/db-users", map[string]any{
				"email": email, "username": username, "password": "secreto123",
			})
			if w.Code != http.StatusCreated {
				t.Fatalf("register %s = %d %s", email, w.Code, w.Body.String())
			}
		}
		w := send(r, http.MethodPost, "/api/v1/db-users/login", map[string]any{"email": email, "password": "secreto123"})
		var body struct {
			Data handlers.LoginData `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Data.User == nil {
			t.Fatalf("login %s: %d %s", email, w.Code, w.Body.String())
		}
		return body.Data.User.ID, body.Data.Token
	}
	userID, userToken := login("luis@example.com", "luis", true)
	_, adminToken := login("root@example.com", "root", false)

	w := send(r, http.MethodPost, "/api/v1/db-users", map[string]any{
		"email": "eve@example.com", "username": "eve", "password": "secreto123", "role": "ADMIN",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous ADMIN registration = %d %s", w.Code, w.Body.String())
	}
	path := "/api/v1/db-users/" + userID

	if w := send(r, http.MethodDelete, path, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("delete without token = %d", w.Code)
	}
	w = send(r, http.MethodDelete, path, nil, "Authorization", "Bearer "+userToken)
	if w.Code != http.StatusForbidden || decodeError(t, w).Message != "No tiene permisos para realizar esta acción" {
		t.Fatalf("delete as USER = %d %s", w.Code, w.Body.String())
	}
	if w := send(r, http.MethodDelete, path, nil, "Authorization", "Bearer "+adminToken); w.Code != http.StatusNoContent {
		t.Fatalf("delete as ADMIN = %d %s", w.Code, w.Body.String())
	}
	if w := send(r, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Fatalf("deleted user still readable: %d", w.Code)
	}
}

func TestRegisterRoutes_MissingSecretFailsClosed(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""
	r, _ := newRouter(t, cfg)

	w := send(r, http.MethodGet, "/api/v1/db-users", nil, "Authorization", "Bearer whatever")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without a secret, got %d %s", w.Code, w.Body.String())
	}
	if b := decodeError(t, w); b.Message != "Ocurrió un error inesperado en el servidor" {
		t.Fatalf("internal detail leaked: %q", b.Message)
	}
}

func TestRegisterRoutes_DebugBodiesInDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.Env, cfg.Debug = config.EnvDevelopment, true
	r, _ := newRouter(t, cfg)

	w := send(r, http.MethodPost, "/api/v1/doctors", map[string]any{"firstName": "A"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", w.Code, w.Body.String())
	}
	b := decodeError(t, w)
	if b.Error == nil || b.Error.Name != "ValidationError" || !b.Error.IsOperational || b.Stack == "" {
		t.Fatalf("debug fields missing: %+v", b)
	}
	if len(b.ValidationErrors) == 0 {
		t.Fatalf("expected validation sub-errors, got %+v", b)
	}
}

func TestRegisterRoutes_BodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.BodyLimit = 32
	r, _ := newRouter(t, cfg)

	w := send(r, http.MethodPost, "/api/v1/users", map[string]any{
		"name": strings.Repeat("x", 64), "email": "big@example.com",
	})
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", w.Code, w.Body.String())
	}
	if b := decodeError(t, w); b.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected body: %+v", b)
	}
}

func TestRegisterRoutes_RateLimitedThroughPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 1
	r, _ := newRouter(t, cfg)

	if w := send(r, http.MethodGet, "/api/v1/doctors", nil); w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}
	w := send(r, http.MethodGet, "/api/v1/doctors", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d %v", w.Code, w.Header())
	}
	if b := decodeError(t, w); b.Status != "error" || b.Path != "/api/v1/doctors" {
		t.Fatalf("unexpected 429 body: %+v", b)
	}
}

func TestRegisterRoutes_HealthReportsUnavailableDB(t *testing.T) {
	r, db := newRouter(t, testConfig())
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	w := send(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %s", w.Code, w.Body.String())
	}
	if b := decodeError(t, w); b.Message != msgUnavailable {
		t.Fatalf("unexpected message %q", b.Message)
	}
}

func TestRegisterRoutes_GzipWrapsErrorResponses(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := send(r, http.MethodGet, "/api/v1/nothing-here", nil, "Accept-Encoding", "gzip")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers=%v", w.Header())
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	var b middleware.ErrorBody
	if err := json.Unmarshal(raw, &b); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	if b.StatusCode != http.StatusNotFound || !strings.HasPrefix(b.Message, "Ruta no encontrada") {
		t.Fatalf("unexpected body: %+v", b)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r, _ := newRouter(t, cfg)

	w := send(r, http.MethodGet, "/swagger/doc.json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("doc.json is not JSON: %v", err)
	}
	if doc["basePath"] != "/api/v1" {
		t.Fatalf("basePath = %v", doc["basePath"])
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/appointments/{id}/cancel"]; !ok {
		t.Fatalf("cancel route missing from docs")
	}

	cfg.SwaggerEnabled = false
	r2, _ := newRouter(t, cfg)
	if w := send(r2, http.MethodGet, "/swagger/doc.json", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off, got %d", w.Code)
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

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
