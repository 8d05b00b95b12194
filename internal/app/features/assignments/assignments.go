// internal/app/features/assignments/assignments.go
package assignments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/dalemusser/cadence/internal/app/features/errors"
	"github.com/dalemusser/cadence/internal/app/features/shared"
	"github.com/dalemusser/cadence/internal/app/services/presence"
	"github.com/dalemusser/cadence/internal/app/services/schedule"
	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/app/system/authz"
	"github.com/dalemusser/cadence/internal/app/system/timeouts"
	"github.com/dalemusser/cadence/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// assignmentRequest is the body of POST /teams/{teamID}/assignments.
// recurrence_pattern may be a JSON object or a string holding one.
type assignmentRequest struct {
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	AssignmentDate    string          `json:"assignment_date"`
	StartTime         string          `json:"start_time"`
	EndTime           string          `json:"end_time"`
	Location          string          `json:"location"`
	IsRecurring       bool            `json:"is_recurring"`
	RecurrencePattern json.RawMessage `json:"recurrence_pattern"`
}

// patchRequest is the body of PATCH /assignments/{assignmentID}. Absent
// fields are left unchanged; "recurrence_pattern": null clears the rule.
type patchRequest struct {
	Title             *string         `json:"title"`
	Description       *string         `json:"description"`
	AssignmentDate    *string         `json:"assignment_date"`
	StartTime         *string         `json:"start_time"`
	EndTime           *string         `json:"end_time"`
	Location          *string         `json:"location"`
	IsRecurring       *bool           `json:"is_recurring"`
	RecurrencePattern json.RawMessage `json:"recurrence_pattern"`
}

// upcomingItem pairs an assignment with the caller's presence for it.
type upcomingItem struct {
	models.Assignment
	Presence presence.Status `json:"presence"`
}

type upcomingResponse struct {
	Assignments []upcomingItem `json:"assignments"`
}

type occurrencesResponse struct {
	Occurrences []schedule.Occurrence `json:"occurrences"`
}

// patternString turns the raw recurrence_pattern into the stored string.
func patternString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", apperr.Validation("http", "recurrence_pattern is not a valid string")
		}
		return s, nil
	}
	return string(raw), nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /teams/{teamID}/assignments                                             |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	teamID, err := shared.ObjectIDParam(r, "teamID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	var req assignmentRequest
	if err := apierrors.DecodeJSON(w, r, &req); err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	pattern, err := patternString(req.RecurrencePattern)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	a, err := h.Schedule.CreateAssignment(ctx, uid, teamID, schedule.AssignmentInput{
		Title:             req.Title,
		Description:       req.Description,
		Date:              req.AssignmentDate,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Location:          req.Location,
		IsRecurring:       req.IsRecurring,
		RecurrencePattern: pattern,
	})
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	h.AuditLog.AssignmentCreated(ctx, r, uid, teamID, a.ID, a.Title)
	apierrors.WriteJSON(w, http.StatusCreated, a)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /teams/{teamID}/assignments/upcoming?window=N                            |
| The caller's presences for the whole page come from one batch query.         |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeUpcoming(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	teamID, err := shared.ObjectIDParam(r, "teamID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	window, err := shared.IntQuery(r, "window", 0)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "upcoming assignments")
	defer cancel()

	list, err := h.Schedule.ListUpcomingFor(ctx, uid, teamID, window)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ids := make([]primitive.ObjectID, len(list))
	for i, a := range list {
		ids[i] = a.ID
	}
	ps, err := h.Presence.ListPresences(ctx, ids, uid)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	byAssignment := make(map[primitive.ObjectID]*models.Presence, len(ps))
	for i := range ps {
		byAssignment[ps[i].AssignmentID] = &ps[i]
	}

	items := make([]upcomingItem, 0, len(list))
	for _, a := range list {
		item := upcomingItem{Assignment: a}
		if p, ok := byAssignment[a.ID]; ok {
			item.Presence = presence.Status{Declared: true, Presence: p}
		}
		items = append(items, item)
	}
	apierrors.WriteJSON(w, http.StatusOK, upcomingResponse{Assignments: items})
}

/*─────────────────────────────────────────────────────────────────────────────*
| PATCH /assignments/{assignmentID}                                            |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	id, err := shared.ObjectIDParam(r, "assignmentID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	var req patchRequest
	if err := apierrors.DecodeJSON(w, r, &req); err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	patch := schedule.AssignmentPatch{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.AssignmentDate,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Location:    req.Location,
		IsRecurring: req.IsRecurring,
	}
	if req.RecurrencePattern != nil {
		pattern, err := patternString(req.RecurrencePattern)
		if err != nil {
			h.Errors.Error(w, r, err)
			return
		}
		patch.RecurrencePattern = &pattern
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	a, err := h.Schedule.UpdateAssignment(ctx, uid, id, patch)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	h.AuditLog.AssignmentUpdated(ctx, r, uid, a.TeamID, a.ID)
	apierrors.WriteJSON(w, http.StatusOK, a)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /assignments/{assignmentID}/occurrences?from=&to=&limit=                 |
| from and to are YYYY-MM-DD in the scheduling zone, or RFC 3339 instants.     |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeOccurrences(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := authz.UserCtx(r)
	if !ok {
		apierrors.Unauthenticated(w)
		return
	}
	id, err := shared.ObjectIDParam(r, "assignmentID")
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	loc := h.Schedule.Location()
	from, err := parseBound(r, "from", loc)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	to, err := parseBound(r, "to", loc)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	limit, err := shared.IntQuery(r, "limit", 0)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	occ, err := h.Schedule.OccurrencesFor(ctx, uid, id, from, to, limit)
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	if occ == nil {
		occ = []schedule.Occurrence{}
	}
	apierrors.WriteJSON(w, http.StatusOK, occurrencesResponse{Occurrences: occ})
}

// parseBound reads a window bound. A missing bound is the zero time.
func parseBound(r *http.Request, name string, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(models.DateLayout, raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("http", name+" must be YYYY-MM-DD or an RFC 3339 time")
}
