// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/cadence/internal/app/store/audit"
	"github.com/dalemusser/cadence/internal/app/system/clientip"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for authentication events (login, logout).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Auth string
	// Admin controls logging for team, membership, assignment and override events.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
	// Proxies decides whether forwarding headers are believed when
	// recording the client address. Nil trusts no proxy.
	Proxies *clientip.Resolver
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

func (l *Logger) clientIP(r *http.Request) string {
	if l == nil {
		return ""
	}
	return l.config.Proxies.IP(r)
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.TeamID != nil {
		fields = append(fields, zap.String("team_id", event.TeamID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAdmin:
		setting = l.config.Admin
	default:
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) admin(ctx context.Context, r *http.Request, eventType string, actorID, userID, teamID *primitive.ObjectID, details map[string]string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: eventType,
		ActorID:   actorID,
		UserID:    userID,
		TeamID:    teamID,
		IP:        l.clientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details:   details,
	})
}

// --- Authentication Events ---

// LoginSuccess logs a completed OAuth login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, provider, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		IP:        l.clientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
		Details: map[string]string{
			"provider": provider,
			"email":    email,
		},
	})
}

// LoginFailed logs an OAuth callback that did not produce a session.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, provider, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailed,
		IP:            l.clientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       false,
		FailureReason: reason,
		Details: map[string]string{
			"provider": provider,
		},
	})
}

// Logout logs a user logout.
// Accepts the string ID from SessionUser; an invalid ID is recorded without a user.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userIDStr string) {
	var userID *primitive.ObjectID
	if oid, err := primitive.ObjectIDFromHex(userIDStr); err == nil {
		userID = &oid
	}

	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UserID:    userID,
		IP:        l.clientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	})
}

// --- Admin Events ---

// UserCreated logs a user record created on first authentication.
func (l *Logger) UserCreated(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	l.admin(ctx, r, audit.EventUserCreated, nil, &userID, nil, map[string]string{"email": email})
}

// ProfileUpdated logs a self-service profile change.
func (l *Logger) ProfileUpdated(ctx context.Context, r *http.Request, userID primitive.ObjectID, fieldsChanged string) {
	l.admin(ctx, r, audit.EventProfileUpdated, &userID, &userID, nil, map[string]string{"fields_changed": fieldsChanged})
}

// TeamCreated logs a new team and its creator.
func (l *Logger) TeamCreated(ctx context.Context, r *http.Request, actorID, teamID primitive.ObjectID, name string) {
	l.admin(ctx, r, audit.EventTeamCreated, &actorID, &actorID, &teamID, map[string]string{"name": name})
}

// MemberJoined logs a join by invitation code.
func (l *Logger) MemberJoined(ctx context.Context, r *http.Request, userID, teamID primitive.ObjectID) {
	l.admin(ctx, r, audit.EventMemberJoined, &userID, &userID, &teamID, nil)
}

// MembershipEnded logs a leave (actor == user) or a removal by an admin.
func (l *Logger) MembershipEnded(ctx context.Context, r *http.Request, actorID, userID, teamID primitive.ObjectID) {
	eventType := audit.EventMemberRemoved
	if actorID == userID {
		eventType = audit.EventMemberLeft
	}
	l.admin(ctx, r, eventType, &actorID, &userID, &teamID, nil)
}

// AssignmentCreated logs a scheduled assignment.
func (l *Logger) AssignmentCreated(ctx context.Context, r *http.Request, actorID, teamID, assignmentID primitive.ObjectID, title string) {
	l.admin(ctx, r, audit.EventAssignmentCreated, &actorID, nil, &teamID, map[string]string{
		"assignment_id": assignmentID.Hex(),
		"title":         title,
	})
}

// AssignmentUpdated logs a change to an assignment.
func (l *Logger) AssignmentUpdated(ctx context.Context, r *http.Request, actorID, teamID, assignmentID primitive.ObjectID) {
	l.admin(ctx, r, audit.EventAssignmentUpdated, &actorID, nil, &teamID, map[string]string{
		"assignment_id": assignmentID.Hex(),
	})
}

// PresenceOverridden logs an admin override of a member's presence.
func (l *Logger) PresenceOverridden(ctx context.Context, r *http.Request, actorID, userID, teamID, assignmentID primitive.ObjectID, status string) {
	l.admin(ctx, r, audit.EventPresenceOverridden, &actorID, &userID, &teamID, map[string]string{
		"assignment_id": assignmentID.Hex(),
		"status":        status,
	})
}
