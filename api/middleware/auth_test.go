package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgauth "github.com/tijarahq/tijara-backend/pkg/auth"
	"github.com/tijarahq/tijara-backend/pkg/config"
	"github.com/tijarahq/tijara-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "tijara-test",
		ExpirationMinutes: 30,
	}
}

func mintToken(t *testing.T, cfg config.JWTConfig, payload pkgauth.AccessTokenPayload) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg, time.Now(), payload)
	require.NoError(t, err)
	return token
}

func TestAuthSeedsActorContext(t *testing.T) {
	cfg := testJWTConfig()
	supplierID := uuid.New()
	userID := uuid.New()
	token := mintToken(t, cfg, pkgauth.AccessTokenPayload{
		UserID:     userID,
		Role:       enums.ActorRoleSupplier,
		SupplierID: &supplierID,
	})

	var seenUser, seenSupplier uuid.UUID
	var seenRole enums.ActorRole
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser, _ = UserIDFromContext(r.Context())
		seenRole, _ = RoleFromContext(r.Context())
		seenSupplier, _ = SupplierIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Auth(cfg, nil)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, seenUser)
	assert.Equal(t, enums.ActorRoleSupplier, seenRole)
	assert.Equal(t, supplierID, seenSupplier)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	Auth(testJWTConfig(), nil)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAuthRejectsForgedToken(t *testing.T) {
	other := testJWTConfig()
	other.Secret = "attacker-secret"
	token := mintToken(t, other, pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleBuyer,
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Auth(testJWTConfig(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRoleBlocksOtherRoles(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := RequireRole(enums.ActorRoleSupplier, nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRole(req.Context(), enums.ActorRoleBuyer))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRole(req.Context(), enums.ActorRoleSupplier))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
