// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/cadence/internal/app/services/presence"
	"github.com/dalemusser/cadence/internal/app/services/schedule"
	"github.com/dalemusser/cadence/internal/app/services/teams"
	"github.com/dalemusser/cadence/internal/app/system/clientip"
	"github.com/dalemusser/cadence/internal/app/system/timezones"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for Cadence.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: CADENCE_MONGO_URI, CADENCE_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "cadence", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "cadence-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime (e.g., 24h, 720h)"},

	// Base URL for OAuth callbacks
	{Name: "base_url", Default: "http://localhost:3000", Desc: "Public base URL of this service"},

	// Google OAuth configuration
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},

	// SuperAdmin bootstrap
	{Name: "superadmin_email", Default: "", Desc: "Email of the super admin user (promoted on startup)"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Scheduling
	{Name: "schedule_time_zone", Default: "UTC", Desc: "IANA time zone assignment dates and times are read in"},
	{Name: "upcoming_window", Default: schedule.DefaultWindow, Desc: "Default number of upcoming assignments returned"},
	{Name: "max_window", Default: schedule.MaxWindow, Desc: "Largest window a caller may request"},

	// Teams and presence
	{Name: "invite_code_attempts", Default: teams.DefaultInviteCodeAttempts, Desc: "Invitation code generation attempts before giving up"},
	{Name: "keep_last_admin", Default: true, Desc: "Refuse to remove the last admin of a team"},
	{Name: "presence_override_policy", Default: string(presence.PolicyPreserve), Desc: "Self declaration over an admin override: 'preserve' (reject) or 'clear'"},

	// Rate limiting
	{Name: "join_rate_limit", Default: 10, Desc: "Team join attempts per user per minute (0 disables)"},
	{Name: "login_rate_limit", Default: 30, Desc: "Sign-in starts per client address per minute (0 disables)"},
	{Name: "trusted_proxies", Default: "", Desc: "Comma-separated proxy IPs/CIDRs whose forwarding headers are trusted"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, CADENCE_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "CADENCE", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 30*24*time.Hour),

		BaseURL: appValues.String("base_url"),

		// Google OAuth
		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),

		// SuperAdmin
		SuperAdminEmail: appValues.String("superadmin_email"),

		// Audit logging
		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		// Scheduling
		ScheduleTimeZone: appValues.String("schedule_time_zone"),
		UpcomingWindow:   appValues.Int("upcoming_window"),
		MaxWindow:        appValues.Int("max_window"),

		// Teams and presence
		InviteCodeAttempts:     appValues.Int("invite_code_attempts"),
		KeepLastAdmin:          appValues.Bool("keep_last_admin"),
		PresenceOverridePolicy: appValues.String("presence_override_policy"),

		// Rate limiting
		JoinRateLimit:  appValues.Int("join_rate_limit"),
		LoginRateLimit: appValues.Int("login_rate_limit"),
		TrustedProxies: appValues.String("trusted_proxies"),
	}

	return coreCfg, appCfg, nil
}

var auditSettings = map[string]bool{"all": true, "db": true, "log": true, "off": true}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoDatabase == "" {
		return fmt.Errorf("mongo_database is required")
	}
	if !timezones.Valid(appCfg.ScheduleTimeZone) {
		return fmt.Errorf("schedule_time_zone %q is not a known IANA time zone", appCfg.ScheduleTimeZone)
	}
	if _, err := presence.ParsePolicy(appCfg.PresenceOverridePolicy); err != nil {
		return err
	}
	if appCfg.UpcomingWindow <= 0 || appCfg.MaxWindow <= 0 {
		return fmt.Errorf("upcoming_window and max_window must be positive (got %d, %d)", appCfg.UpcomingWindow, appCfg.MaxWindow)
	}
	if appCfg.UpcomingWindow > appCfg.MaxWindow {
		return fmt.Errorf("upcoming_window (%d) exceeds max_window (%d)", appCfg.UpcomingWindow, appCfg.MaxWindow)
	}
	if appCfg.InviteCodeAttempts <= 0 {
		return fmt.Errorf("invite_code_attempts must be positive (got %d)", appCfg.InviteCodeAttempts)
	}
	if appCfg.JoinRateLimit < 0 || appCfg.LoginRateLimit < 0 {
		return fmt.Errorf("rate limits must not be negative (got join %d, login %d)", appCfg.JoinRateLimit, appCfg.LoginRateLimit)
	}
	if _, err := clientip.Parse(appCfg.TrustedProxies); err != nil {
		return fmt.Errorf("trusted_proxies: %w", err)
	}
	for name, v := range map[string]string{"audit_log_auth": appCfg.AuditLogAuth, "audit_log_admin": appCfg.AuditLogAdmin} {
		if !auditSettings[v] {
			return fmt.Errorf("%s must be all, db, log or off (got %q)", name, v)
		}
	}
	if (appCfg.GoogleClientID == "") != (appCfg.GoogleClientSecret == "") {
		return fmt.Errorf("google_client_id and google_client_secret must be set together")
	}
	if appCfg.GoogleClientID == "" {
		logger.Warn("Google OAuth not configured; sign-in is unavailable")
	}
	return nil
}
