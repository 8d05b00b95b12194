package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/cadence/internal/app/system/auth"
	"github.com/dalemusser/cadence/internal/app/system/metrics"
	"github.com/dalemusser/cadence/internal/domain/models"
	"github.com/dalemusser/cadence/internal/testutil"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:               "mongodb://localhost:27017",
		MongoDatabase:          "cadence",
		SessionKey:             "test-session-key-0123456789ABCDEF0123",
		SessionName:            "cadence-session",
		SessionMaxAge:          time.Hour,
		BaseURL:                "http://localhost:3000",
		AuditLogAuth:           "all",
		AuditLogAdmin:          "db",
		ScheduleTimeZone:       "America/Chicago",
		UpcomingWindow:         10,
		MaxWindow:              100,
		InviteCodeAttempts:     5,
		KeepLastAdmin:          true,
		PresenceOverridePolicy: "preserve",
		JoinRateLimit:          10,
		LoginRateLimit:         30,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"google configured", func(c *AppConfig) { c.GoogleClientID, c.GoogleClientSecret = "id", "secret" }, ""},
		{"bad uri", func(c *AppConfig) { c.MongoURI = "postgres://nope" }, "MongoDB URI"},
		{"no database", func(c *AppConfig) { c.MongoDatabase = "" }, "mongo_database"},
		{"unknown zone", func(c *AppConfig) { c.ScheduleTimeZone = "Mars/Olympus" }, "schedule_time_zone"},
		{"bad policy", func(c *AppConfig) { c.PresenceOverridePolicy = "sometimes" }, "policy"},
		{"zero window", func(c *AppConfig) { c.UpcomingWindow = 0 }, "must be positive"},
		{"window over max", func(c *AppConfig) { c.UpcomingWindow = 500 }, "exceeds max_window"},
		{"no attempts", func(c *AppConfig) { c.InviteCodeAttempts = 0 }, "invite_code_attempts"},
		{"negative rate limit", func(c *AppConfig) { c.JoinRateLimit = -1 }, "rate limits"},
		{"bad audit", func(c *AppConfig) { c.AuditLogAdmin = "verbose" }, "audit_log_admin"},
		{"half google", func(c *AppConfig) { c.GoogleClientID = "id" }, "set together"},
		{"trusted proxies", func(c *AppConfig) { c.TrustedProxies = "10.0.0.0/8, 192.0.2.1" }, ""},
		{"bad trusted proxy", func(c *AppConfig) { c.TrustedProxies = "10.0.0.0/8, proxy.local" }, "trusted_proxies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&config.CoreConfig{}, cfg, testLogger())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureSuperAdmin_PromotesExisting(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	boss := fx.CreateUser(ctx, "boss@example.com")
	other := fx.CreateUser(ctx, "other@example.com")

	deps := DBDeps{MongoDatabase: db}
	if err := ensureSuperAdmin(ctx, deps, " Boss@Example.com ", testLogger()); err != nil {
		t.Fatalf("ensureSuperAdmin: %v", err)
	}

	var got models.User
	if err := db.Collection("users").FindOne(ctx, bson.M{"_id": boss.ID}).Decode(&got); err != nil {
		t.Fatalf("find boss: %v", err)
	}
	if !got.IsSuperAdmin {
		t.Error("configured user was not promoted")
	}
	if err := db.Collection("users").FindOne(ctx, bson.M{"_id": other.ID}).Decode(&got); err != nil {
		t.Fatalf("find other: %v", err)
	}
	if got.IsSuperAdmin {
		t.Error("unrelated user was promoted")
	}

	// Running again is a no-op.
	if err := ensureSuperAdmin(ctx, deps, "boss@example.com", testLogger()); err != nil {
		t.Fatalf("second ensureSuperAdmin: %v", err)
	}
}

func TestEnsureSuperAdmin_NoAccountYet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deps := DBDeps{MongoDatabase: db}
	if err := ensureSuperAdmin(ctx, deps, "nobody@example.com", testLogger()); err != nil {
		t.Fatalf("ensureSuperAdmin: %v", err)
	}
	n, err := db.Collection("users").CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("users created: got %d, want 0", n)
	}

	if err := ensureSuperAdmin(ctx, deps, "", testLogger()); err != nil {
		t.Fatalf("empty email: %v", err)
	}
}

func TestBuildHandler_Routes(t *testing.T) {
	db := testutil.SetupTestDB(t)

	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}
	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validConfig(), deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/auth/google/", http.StatusServiceUnavailable},
		{http.MethodGet, "/me/", http.StatusUnauthorized},
		{http.MethodPost, "/teams/", http.StatusUnauthorized},
		{http.MethodGet, "/teams/0123456789abcdef01234567/assignments/upcoming", http.StatusUnauthorized},
		{http.MethodGet, "/assignments/0123456789abcdef01234567/occurrences", http.StatusUnauthorized},
		{http.MethodPost, "/logout/", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status: got %d, want %d (body: %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestBuildHandler_LoginLimitIgnoresUntrustedForwarding(t *testing.T) {
	db := testutil.SetupTestDB(t)

	cfg := validConfig()
	cfg.LoginRateLimit = 1
	cfg.TrustedProxies = "10.0.0.0/8"
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}
	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, cfg, deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}

	get := func(remote, xff string) int {
		r := httptest.NewRequest(http.MethodGet, "/auth/google/", nil)
		r.RemoteAddr = remote
		r.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	if got := get("198.51.100.9:4000", "203.0.113.1"); got != http.StatusServiceUnavailable {
		t.Fatalf("first direct request: got %d, want 503", got)
	}
	if got := get("198.51.100.9:4000", "203.0.113.2"); got != http.StatusTooManyRequests {
		t.Errorf("rotated X-Forwarded-For from a direct caller: got %d, want 429", got)
	}
	if got := get("10.0.0.2:1234", "203.0.113.3"); got != http.StatusServiceUnavailable {
		t.Errorf("client behind trusted proxy: got %d, want its own bucket", got)
	}
}

func TestCountSessions(t *testing.T) {
	sm, err := auth.NewSessionManager("test-session-key-0123456789ABCDEF0123", "", "", time.Hour, false, testLogger())
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	m := metrics.New()
	unsubscribe := countSessions(sm, m)

	login := func() {
		r := httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil)
		if err := sm.Login(httptest.NewRecorder(), r, auth.SessionUser{ID: "u1"}); err != nil {
			t.Fatalf("Login: %v", err)
		}
	}
	scrape := func() string {
		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Body.String()
	}

	login()
	want := `cadence_session_changes_total{kind="login"} 1`
	if body := scrape(); !strings.Contains(body, want) {
		t.Errorf("scrape missing %q", want)
	}

	unsubscribe()
	login()
	if body := scrape(); !strings.Contains(body, want) {
		t.Errorf("login after unsubscribe was counted; want %q to remain", want)
	}
}
