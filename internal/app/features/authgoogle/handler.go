// internal/app/features/authgoogle/handler.go
package authgoogle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apierrors "github.com/dalemusser/cadence/internal/app/features/errors"
	"github.com/dalemusser/cadence/internal/app/services/identity"
	"github.com/dalemusser/cadence/internal/app/store/oauthstate"
	"github.com/dalemusser/cadence/internal/app/system/auditlog"
	"github.com/dalemusser/cadence/internal/app/system/auth"
	"github.com/dalemusser/cadence/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultUserInfoURL is Google's userinfo endpoint.
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// stateTTL is how long a login attempt may take between redirect and callback.
const stateTTL = 10 * time.Minute

// Handler handles Google OAuth authentication.
type Handler struct {
	Identity   *identity.Service
	SessionMgr *auth.SessionManager
	StateStore *oauthstate.Store
	AuditLog   *auditlog.Logger
	Errors     *apierrors.Writer
	Log        *zap.Logger

	// OAuth configuration
	ClientID     string
	ClientSecret string
	RedirectURL  string // e.g., "https://cadence.example.com/auth/google/callback"

	// Endpoint and UserInfoURL default to Google's; tests point them at a
	// local server.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// NewHandler creates a new Google OAuth handler.
func NewHandler(
	ident *identity.Service,
	sessionMgr *auth.SessionManager,
	stateStore *oauthstate.Store,
	audit *auditlog.Logger,
	errs *apierrors.Writer,
	clientID, clientSecret, baseURL string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Identity:     ident,
		SessionMgr:   sessionMgr,
		StateStore:   stateStore,
		AuditLog:     audit,
		Errors:       errs,
		Log:          logger,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  baseURL + "/auth/google/callback",
		Endpoint:     google.Endpoint,
		UserInfoURL:  DefaultUserInfoURL,
	}
}

// oauth2Config returns the Google OAuth2 configuration.
func (h *Handler) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.ClientID,
		ClientSecret: h.ClientSecret,
		RedirectURL:  h.RedirectURL,
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: h.Endpoint,
	}
}

// IsConfigured returns true if Google OAuth is configured.
func (h *Handler) IsConfigured() bool {
	return h.ClientID != "" && h.ClientSecret != ""
}

// fail writes a JSON error for a login attempt that did not complete and
// records it in the audit log.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, reason, msg string) {
	h.AuditLog.LoginFailed(r.Context(), r, "google", reason)
	apierrors.WriteJSON(w, status, map[string]any{
		"error": map[string]string{"kind": "unauthenticated", "message": msg, "reason": reason},
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google                                                             |
| Initiates the Google OAuth flow by redirecting to Google's consent screen.   |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if !h.IsConfigured() {
		h.Log.Warn("Google OAuth not configured")
		apierrors.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": map[string]string{"kind": "unavailable", "message": "Google sign-in is not configured"},
		})
		return
	}

	state, err := generateState()
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}

	returnURL := query.Get(r, "return")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.StateStore.Save(ctx, state, returnURL, time.Now().UTC().Add(stateTTL)); err != nil {
		h.Log.Error("failed to save OAuth state", zap.Error(err))
		h.Errors.Error(w, r, err)
		return
	}

	url := h.oauth2Config().AuthCodeURL(state)

	h.Log.Debug("initiating Google OAuth flow",
		zap.String("redirect_url", url),
		zap.String("return_url", returnURL))

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/google/callback                                                    |
| Exchanges the code, fetches the Google profile, ensures the local user and   |
| starts a session.                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if errParam := query.Get(r, "error"); errParam != "" {
		h.Log.Warn("Google OAuth error",
			zap.String("error", errParam),
			zap.String("description", query.Get(r, "error_description")))
		h.fail(w, r, http.StatusUnauthorized, "google_denied", "Google sign-in was cancelled")
		return
	}

	state := query.Get(r, "state")
	if state == "" {
		h.fail(w, r, http.StatusBadRequest, "invalid_state", "missing state parameter")
		return
	}

	stateCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	returnURL, valid, err := h.StateStore.Validate(stateCtx, state)
	if err != nil {
		h.Log.Error("failed to validate OAuth state", zap.Error(err))
		h.Errors.Error(w, r, err)
		return
	}
	if !valid {
		h.fail(w, r, http.StatusBadRequest, "invalid_state", "sign-in link expired; start again")
		return
	}

	code := query.Get(r, "code")
	if code == "" {
		h.fail(w, r, http.StatusBadRequest, "invalid_code", "missing code parameter")
		return
	}

	exchangeCtx, cancelExchange := context.WithTimeout(ctx, timeouts.Medium())
	defer cancelExchange()

	token, err := h.oauth2Config().Exchange(exchangeCtx, code)
	if err != nil {
		h.Log.Error("failed to exchange OAuth code", zap.Error(err))
		h.fail(w, r, http.StatusBadGateway, "token_exchange", "could not complete Google sign-in")
		return
	}

	googleUser, err := h.fetchUserInfo(exchangeCtx, token)
	if err != nil {
		h.Log.Error("failed to fetch Google user info", zap.Error(err))
		h.fail(w, r, http.StatusBadGateway, "user_info", "could not read the Google profile")
		return
	}
	if !googleUser.EmailVerified {
		h.fail(w, r, http.StatusForbidden, "email_unverified", "your Google email address is not verified")
		return
	}

	h.Log.Debug("Google user info fetched",
		zap.String("google_id", googleUser.ID),
		zap.String("email", googleUser.Email))

	dbCtx, cancelDB := context.WithTimeout(ctx, timeouts.Short())
	defer cancelDB()

	user, created, err := h.Identity.EnsureUser(dbCtx, identity.Principal{
		IdentityID:  "google|" + googleUser.ID,
		Email:       googleUser.Email,
		DisplayName: googleUser.Name,
		FirstName:   googleUser.GivenName,
		LastName:    googleUser.FamilyName,
		AvatarURL:   googleUser.Picture,
	})
	if err != nil {
		h.Errors.Error(w, r, err)
		return
	}
	if created {
		h.AuditLog.UserCreated(ctx, r, user.ID, user.Email)
	}

	if err := h.SessionMgr.Login(w, r, auth.SessionUser{
		ID:           user.ID.Hex(),
		Name:         user.DisplayName,
		Email:        user.Email,
		IsSuperAdmin: user.IsSuperAdmin,
	}); err != nil {
		h.Log.Error("save session failed", zap.Error(err), zap.String("user_id", user.ID.Hex()))
		h.Errors.Error(w, r, err)
		return
	}

	h.AuditLog.LoginSuccess(ctx, r, user.ID, "google", user.Email)
	h.Log.Info("user logged in via Google OAuth",
		zap.String("user_id", user.ID.Hex()),
		zap.Bool("created", created))

	http.Redirect(w, r, urlutil.SafeReturn(returnURL, "", "/me"), http.StatusSeeOther)
}

// googleUserInfo represents user info returned from Google.
type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// fetchUserInfo retrieves the profile from the userinfo endpoint.
func (h *Handler) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get(h.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return nil, errors.New("user info is missing id or email")
	}
	return &info, nil
}

// generateState creates a random, URL-safe state string.
func generateState() (string, error) {
	b := securecookie.GenerateRandomKey(32)
	if b == nil {
		return "", errors.New("could not generate OAuth state")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
