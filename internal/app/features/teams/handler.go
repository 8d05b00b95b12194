// internal/app/features/teams/handler.go
package teams

import (
	"net/http"

	apierrors "github.com/dalemusser/cadence/internal/app/features/errors"
	teamsvc "github.com/dalemusser/cadence/internal/app/services/teams"
	"github.com/dalemusser/cadence/internal/app/system/auditlog"
	"go.uber.org/zap"
)

// Handler serves team creation, joining and membership endpoints.
type Handler struct {
	Teams    *teamsvc.Service
	AuditLog *auditlog.Logger
	Errors   *apierrors.Writer
	Log      *zap.Logger

	// JoinLimit, when set, wraps POST /join to throttle code guessing.
	JoinLimit func(http.Handler) http.Handler
}

func NewHandler(ts *teamsvc.Service, audit *auditlog.Logger, errs *apierrors.Writer, logger *zap.Logger) *Handler {
	return &Handler{
		Teams:    ts,
		AuditLog: audit,
		Errors:   errs,
		Log:      logger,
	}
}
