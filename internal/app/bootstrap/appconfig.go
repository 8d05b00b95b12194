// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like HTTP ports, TLS,
// logging level and CORS. AppConfig carries the database, session, identity
// provider and scheduling settings of Cadence itself.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: cadence-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Base URL the OAuth callback is built from
	BaseURL string // e.g., "https://cadence.example.com" or "http://localhost:3000"

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string

	// SuperAdmin bootstrap
	SuperAdminEmail string

	// Audit logging: "all", "db", "log" or "off"
	AuditLogAuth  string
	AuditLogAdmin string

	// Scheduling
	ScheduleTimeZone string // IANA zone assignments are read in (e.g., America/Chicago)
	UpcomingWindow   int    // default page size for upcoming assignments
	MaxWindow        int    // cap on any requested window

	// Teams and presence policy
	InviteCodeAttempts     int    // invitation code generation retries on collision
	KeepLastAdmin          bool   // refuse to remove a team's last admin
	PresenceOverridePolicy string // "preserve" or "clear"

	// Rate limits per minute; 0 disables
	JoinRateLimit  int // join attempts per user
	LoginRateLimit int // sign-in starts per client address

	// Comma-separated IPs or CIDRs whose X-Forwarded-For / X-Real-IP
	// headers are believed; blank trusts none
	TrustedProxies string
}
