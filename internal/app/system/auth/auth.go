package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	isAuthKey   = "is_authenticated"
	userIDKey   = "user_id"
	userNameKey = "user_name"
	userEmail   = "user_email"
	superKey    = "is_super_admin"
)

// SessionUser is what we cache in the session & inject into r.Context().
// ID is the hex ObjectID of the users document.
type SessionUser struct {
	ID           string
	Name         string
	Email        string
	IsSuperAdmin bool
}

// ChangeKind distinguishes session transitions.
type ChangeKind string

const (
	ChangeLogin  ChangeKind = "login"
	ChangeLogout ChangeKind = "logout"
)

// Change is delivered to subscribers after a session is written.
type Change struct {
	Kind   ChangeKind
	UserID string
	At     time.Time
}

// SessionManager owns the cookie store and the list of session observers.
// Build one at startup and pass it to the handlers that need it.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]func(Change)
}

// NewSessionManager builds a cookie-backed session manager. The `secure`
// flag controls the Secure attribute and SameSite mode.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = "cadence-session"
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{
		store: store,
		name:  name,
		log:   logger,
		subs:  make(map[int]func(Change)),
	}, nil
}

// Subscribe registers fn to be called after every login and logout. The
// returned function removes the registration; calling it twice is harmless.
func (sm *SessionManager) Subscribe(fn func(Change)) (unsubscribe func()) {
	sm.mu.Lock()
	id := sm.nextID
	sm.nextID++
	sm.subs[id] = fn
	sm.mu.Unlock()

	return func() {
		sm.mu.Lock()
		delete(sm.subs, id)
		sm.mu.Unlock()
	}
}

func (sm *SessionManager) notify(c Change) {
	sm.mu.Lock()
	fns := make([]func(Change), 0, len(sm.subs))
	for _, fn := range sm.subs {
		fns = append(fns, fn)
	}
	sm.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Login writes u into a fresh session and notifies subscribers.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID
	sess.Values[userNameKey] = u.Name
	sess.Values[userEmail] = u.Email
	sess.Values[superKey] = u.IsSuperAdmin
	if err := sess.Save(r, w); err != nil {
		return err
	}
	sm.notify(Change{Kind: ChangeLogin, UserID: u.ID, At: time.Now()})
	return nil
}

// Logout expires the session cookie and notifies subscribers.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.store.Get(r, sm.name)
	userID := getString(sess, userIDKey)
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return err
	}
	sm.notify(Change{Kind: ChangeLogout, UserID: userID, At: time.Now()})
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// WithTestUser injects u into the request context. Used by handler tests
// that bypass the cookie store.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

// LoadSessionUser injects the user into context if they are logged in.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			// Tampered or rotated-key cookie: treat as signed out.
			sm.log.Debug("session decode failed", zap.Error(err))
		}
		if sess != nil {
			if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
				super, _ := sess.Values[superKey].(bool)
				r = withUser(r, &SessionUser{
					ID:           getString(sess, userIDKey),
					Name:         getString(sess, userNameKey),
					Email:        getString(sess, userEmail),
					IsSuperAdmin: super,
				})
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn ensures there is a user in context (set by LoadSessionUser).
// Callers without one get 401 with a JSON error body.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"kind":    "unauthenticated",
				"message": "sign in required",
			},
		})
	})
}

// helpers

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
