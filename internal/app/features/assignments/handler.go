// internal/app/features/assignments/handler.go
package assignments

import (
	apierrors "github.com/dalemusser/cadence/internal/app/features/errors"
	"github.com/dalemusser/cadence/internal/app/services/presence"
	"github.com/dalemusser/cadence/internal/app/services/schedule"
	"github.com/dalemusser/cadence/internal/app/system/auditlog"
	"go.uber.org/zap"
)

// Handler serves assignment scheduling and presence endpoints.
type Handler struct {
	Schedule *schedule.Service
	Presence *presence.Service
	AuditLog *auditlog.Logger
	Errors   *apierrors.Writer
	Log      *zap.Logger
}

func NewHandler(sched *schedule.Service, pres *presence.Service, audit *auditlog.Logger, errs *apierrors.Writer, logger *zap.Logger) *Handler {
	return &Handler{
		Schedule: sched,
		Presence: pres,
		AuditLog: audit,
		Errors:   errs,
		Log:      logger,
	}
}
