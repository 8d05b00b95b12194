// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"strings"

	oauthstatestore "github.com/dalemusser/cadence/internal/app/store/oauthstate"
	userstore "github.com/dalemusser/cadence/internal/app/store/users"
	"github.com/dalemusser/cadence/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{})

	if err := ensureSuperAdmin(ctx, deps, appCfg.SuperAdminEmail, logger); err != nil {
		return err
	}

	cleanCtx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()
	n, err := oauthstatestore.New(deps.MongoDatabase).CleanupExpired(cleanCtx)
	if err != nil {
		// Expired states are harmless; the TTL index removes them eventually.
		logger.Warn("oauth state cleanup failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("removed expired oauth states", zap.Int64("count", n))
	}
	return nil
}

// ensureSuperAdmin flags the configured address as super admin. Users are
// created on first sign-in, so an address with no account yet is promoted
// by the identity service when it signs in.
func ensureSuperAdmin(ctx context.Context, deps DBDeps, email string, logger *zap.Logger) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	n, err := userstore.New(deps.MongoDatabase).SetSuperAdminByEmail(ctx, email)
	if err != nil {
		logger.Error("super admin promotion failed", zap.String("email", email), zap.Error(err))
		return err
	}
	if n == 0 {
		logger.Info("super admin not signed in yet; promotion happens on first sign-in", zap.String("email", email))
		return nil
	}
	logger.Info("super admin ensured", zap.String("email", email), zap.Int64("promoted", n))
	return nil
}
