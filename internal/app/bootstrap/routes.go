// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"net/http"
	"time"

	assignmentsfeature "github.com/dalemusser/cadence/internal/app/features/assignments"
	authgooglefeature "github.com/dalemusser/cadence/internal/app/features/authgoogle"
	apierrors "github.com/dalemusser/cadence/internal/app/features/errors"
	healthfeature "github.com/dalemusser/cadence/internal/app/features/health"
	logoutfeature "github.com/dalemusser/cadence/internal/app/features/logout"
	profilefeature "github.com/dalemusser/cadence/internal/app/features/profile"
	teamsfeature "github.com/dalemusser/cadence/internal/app/features/teams"
	"github.com/dalemusser/cadence/internal/app/services/identity"
	"github.com/dalemusser/cadence/internal/app/services/presence"
	"github.com/dalemusser/cadence/internal/app/services/schedule"
	"github.com/dalemusser/cadence/internal/app/services/teams"
	"github.com/dalemusser/cadence/internal/app/store/audit"
	metricsstore "github.com/dalemusser/cadence/internal/app/store/metrics"
	"github.com/dalemusser/cadence/internal/app/store/oauthstate"
	"github.com/dalemusser/cadence/internal/app/system/auditlog"
	"github.com/dalemusser/cadence/internal/app/system/auth"
	"github.com/dalemusser/cadence/internal/app/system/clientip"
	"github.com/dalemusser/cadence/internal/app/system/metrics"
	"github.com/dalemusser/cadence/internal/app/system/ratelimit"
	"github.com/dalemusser/cadence/internal/app/system/timeouts"
	"github.com/dalemusser/cadence/internal/app/system/timezones"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. Cadence builds its services once here,
// applies session middleware, and mounts the JSON feature routers:
//   - /health, /metrics
//   - /auth/google, /logout
//   - /me, /teams, /assignments (signed-in only)
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	loc, err := timezones.Resolve(appCfg.ScheduleTimeZone)
	if err != nil {
		logger.Error("schedule time zone", zap.Error(err))
		return nil, err
	}
	policy, err := presence.ParsePolicy(appCfg.PresenceOverridePolicy)
	if err != nil {
		return nil, err
	}
	proxies, err := clientip.Parse(appCfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	db := deps.MongoDatabase

	m := metrics.New()
	m.RegisterCounts(func(ctx context.Context) metricsstore.Counts {
		return metricsstore.FetchCounts(ctx, db)
	}, timeouts.Medium())
	countSessions(sessionMgr, m)

	errs := apierrors.NewWriter(logger, m)
	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{
		Auth:    appCfg.AuditLogAuth,
		Admin:   appCfg.AuditLogAdmin,
		Proxies: proxies,
	})

	// Services
	identitySvc := identity.New(db, m, logger)
	identitySvc.SetSuperAdminEmail(appCfg.SuperAdminEmail)

	teamsSvc := teams.New(db, teams.Config{
		InviteCodeAttempts: appCfg.InviteCodeAttempts,
		KeepLastAdmin:      appCfg.KeepLastAdmin,
	}, m, logger)

	scheduleSvc := schedule.New(db, teamsSvc, schedule.Config{
		Location:      loc,
		DefaultWindow: appCfg.UpcomingWindow,
		MaxWindow:     appCfg.MaxWindow,
	}, m, logger)

	presenceSvc := presence.New(db, teamsSvc, presence.Config{Policy: policy}, m, logger)

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", m.Handler())

	// Authentication
	googleHandler := authgooglefeature.NewHandler(
		identitySvc,
		sessionMgr,
		oauthstate.New(db),
		auditLog,
		errs,
		appCfg.GoogleClientID,
		appCfg.GoogleClientSecret,
		appCfg.BaseURL,
		logger,
	)
	loginLimiter := ratelimit.New(appCfg.LoginRateLimit, time.Minute)
	r.With(loginLimiter.Middleware(ratelimit.ByIP(proxies), logger)).
		Mount("/auth/google", authgooglefeature.Routes(googleHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, auditLog, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

	profileHandler := profilefeature.NewHandler(identitySvc, teamsSvc, auditLog, errs, logger)
	teamsHandler := teamsfeature.NewHandler(teamsSvc, auditLog, errs, logger)
	teamsHandler.JoinLimit = ratelimit.New(appCfg.JoinRateLimit, time.Minute).Middleware(ratelimit.ByUser(proxies), logger)
	assignmentsHandler := assignmentsfeature.NewHandler(scheduleSvc, presenceSvc, auditLog, errs, logger)

	r.Group(func(pr chi.Router) {
		pr.Use(sessionMgr.RequireSignedIn)

		pr.Mount("/me", profilefeature.Routes(profileHandler))

		tr := teamsfeature.Routes(teamsHandler)
		tr.Mount("/{teamID}/assignments", assignmentsfeature.TeamRoutes(assignmentsHandler))
		pr.Mount("/teams", tr)

		pr.Mount("/assignments", assignmentsfeature.Routes(assignmentsHandler))
	})

	return r, nil
}

// countSessions feeds login and logout transitions into the session
// counter for the lifetime of sm.
func countSessions(sm *auth.SessionManager, m *metrics.Metrics) (unsubscribe func()) {
	return sm.Subscribe(func(c auth.Change) {
		m.SessionChanged(string(c.Kind))
	})
}
