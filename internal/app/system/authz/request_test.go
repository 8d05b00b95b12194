package authz_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/cadence/internal/app/system/auth"
	"github.com/dalemusser/cadence/internal/app/system/authz"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUserCtx(t *testing.T) {
	id := primitive.NewObjectID()

	tests := []struct {
		name   string
		user   *auth.SessionUser
		wantOK bool
	}{
		{"no user", nil, false},
		{"valid id", &auth.SessionUser{ID: id.Hex(), Name: "Ada"}, true},
		{"malformed id", &auth.SessionUser{ID: "not-an-id", Name: "Ada"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.user != nil {
				r = auth.WithTestUser(r, tt.user)
			}
			name, uid, ok := authz.UserCtx(r)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (uid != id || name != "Ada") {
				t.Errorf("UserCtx = (%q, %s)", name, uid.Hex())
			}
		})
	}
}
