// internal/app/features/profile/handler.go
package profile

import (
	apierrors "github.com/dalemusser/cadence/internal/app/features/errors"
	"github.com/dalemusser/cadence/internal/app/services/identity"
	"github.com/dalemusser/cadence/internal/app/services/teams"
	"github.com/dalemusser/cadence/internal/app/system/auditlog"
	"go.uber.org/zap"
)

// Handler owns the signed-in user's own endpoints under /me.
type Handler struct {
	Identity *identity.Service
	Teams    *teams.Service
	AuditLog *auditlog.Logger
	Errors   *apierrors.Writer
	Log      *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(ident *identity.Service, ts *teams.Service, audit *auditlog.Logger, errs *apierrors.Writer, logger *zap.Logger) *Handler {
	return &Handler{
		Identity: ident,
		Teams:    ts,
		AuditLog: audit,
		Errors:   errs,
		Log:      logger,
	}
}
