// Package identity resolves authenticated principals to local user records.
package identity

import (
	"context"
	"errors"
	"strings"

	userstore "github.com/dalemusser/cadence/internal/app/store/users"
	"github.com/dalemusser/cadence/internal/app/system/apperr"
	"github.com/dalemusser/cadence/internal/app/system/htmlsanitize"
	"github.com/dalemusser/cadence/internal/app/system/metrics"
	"github.com/dalemusser/cadence/internal/app/system/normalize"
	"github.com/dalemusser/cadence/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Principal is what the identity provider tells us about a signed-in user.
type Principal struct {
	IdentityID  string
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
	AvatarURL   string
}

// Service creates and reads local user records.
type Service struct {
	users      *userstore.Store
	metrics    *metrics.Metrics
	log        *zap.Logger
	superAdmin string
}

// New builds the service. m and logger may be nil.
func New(db *mongo.Database, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:   userstore.New(db),
		metrics: m,
		log:     logger,
	}
}

// SetSuperAdminEmail names the address promoted to super admin when its
// user signs in. Empty disables promotion.
func (s *Service) SetSuperAdminEmail(email string) {
	s.superAdmin = normalize.Email(email)
}

// EnsureUser returns the user for p, creating it on first sight. created
// reports whether this call inserted the record. An existing record is
// returned as stored; the principal never overwrites it.
func (s *Service) EnsureUser(ctx context.Context, p Principal) (u models.User, created bool, err error) {
	const op = "identity.EnsureUser"

	p.IdentityID = strings.TrimSpace(p.IdentityID)
	p.Email = normalize.Email(p.Email)
	switch {
	case p.IdentityID == "":
		return models.User{}, false, apperr.Validation(op, "identity id is required")
	case p.Email == "":
		return models.User{}, false, apperr.Validation(op, "email is required")
	}

	id := userstore.Identity{
		IdentityID:  p.IdentityID,
		Email:       p.Email,
		DisplayName: normalize.Name(p.DisplayName),
		FirstName:   normalize.Name(p.FirstName),
		LastName:    normalize.Name(p.LastName),
		AvatarURL:   strings.TrimSpace(p.AvatarURL),
	}
	if id.DisplayName == "" {
		id.DisplayName = p.Email
	}

	u, created, err = s.users.EnsureByIdentity(ctx, id)
	if err != nil && wafflemongo.IsDup(err) {
		// Lost the insert race; the winner's record is there now.
		u, created, err = s.users.EnsureByIdentity(ctx, id)
	}
	if err != nil {
		return models.User{}, false, apperr.Persistence(op, err).With("identity_id", p.IdentityID)
	}

	if s.superAdmin != "" && u.Email == s.superAdmin && !u.IsSuperAdmin {
		if _, err := s.users.SetSuperAdminByEmail(ctx, u.Email); err != nil {
			return models.User{}, false, apperr.Persistence(op, err).With("user_id", u.ID.Hex())
		}
		u.IsSuperAdmin = true
		s.log.Info("user promoted to super admin", zap.String("user_id", u.ID.Hex()))
	}

	if created {
		s.metrics.UserCreated()
		s.log.Info("user created",
			zap.String("user_id", u.ID.Hex()),
			zap.String("identity_id", u.IdentityID))
	}
	return u, created, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	const op = "identity.Get"
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, apperr.NotFound(op, "user not found")
	}
	if err != nil {
		return models.User{}, apperr.Persistence(op, err).With("user_id", id.Hex())
	}
	return *u, nil
}

// ProfileUpdate carries the self-editable profile fields. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Phone       *string `json:"phone"`
	AvatarURL   *string `json:"avatar_url"`
}

// UpdateProfile changes the profile of userID. Only the user may edit their
// own profile; identity and email are immutable.
func (s *Service) UpdateProfile(ctx context.Context, actorID, userID primitive.ObjectID, upd ProfileUpdate) (models.User, error) {
	const op = "identity.UpdateProfile"

	if actorID != userID {
		return models.User{}, apperr.Authorization(op, "profiles can only be edited by their owner")
	}

	clean := userstore.ProfileUpdate{
		DisplayName: cleaned(upd.DisplayName, normalize.Name),
		FirstName:   cleaned(upd.FirstName, normalize.Name),
		LastName:    cleaned(upd.LastName, normalize.Name),
		Phone:       cleaned(upd.Phone, htmlsanitize.PlainText),
		AvatarURL:   cleaned(upd.AvatarURL, strings.TrimSpace),
	}
	if clean.Empty() {
		return models.User{}, apperr.Validation(op, "no profile fields to update")
	}
	if clean.DisplayName != nil && *clean.DisplayName == "" {
		return models.User{}, apperr.Validation(op, "display name cannot be empty")
	}

	u, err := s.users.UpdateProfile(ctx, userID, clean)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, apperr.NotFound(op, "user not found")
	}
	if err != nil {
		return models.User{}, apperr.Persistence(op, err).With("user_id", userID.Hex())
	}
	return *u, nil
}

// ChangedFields lists the JSON names of the fields upd sets, comma separated.
func (upd ProfileUpdate) ChangedFields() string {
	var names []string
	add := func(p *string, name string) {
		if p != nil {
			names = append(names, name)
		}
	}
	add(upd.DisplayName, "display_name")
	add(upd.FirstName, "first_name")
	add(upd.LastName, "last_name")
	add(upd.Phone, "phone")
	add(upd.AvatarURL, "avatar_url")
	return strings.Join(names, ",")
}

func cleaned(p *string, fn func(string) string) *string {
	if p == nil {
		return nil
	}
	v := fn(*p)
	return &v
}
