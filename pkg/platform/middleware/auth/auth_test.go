package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	id "certhub/pkg/domain"
	"certhub/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) { return s.claims, s.err }

type stubRevocation struct {
	revoked bool
	err     error
}

func (s stubRevocation) IsTokenRevoked(context.Context, string) (bool, error) {
	return s.revoked, s.err
}

type AuthMiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
	userID id.UserID
	claims *JWTClaims
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.userID = id.NewUserID()
	s.claims = &JWTClaims{UserID: s.userID.String(), Role: "USER", JTI: "jti-1"}
}

func (s *AuthMiddlewareSuite) serve(mw func(http.Handler) http.Handler, header string) (*httptest.ResponseRecorder, context.Context) {
	var seen context.Context
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, seen
}

func (s *AuthMiddlewareSuite) TestMissingHeader() {
	rr, _ := s.serve(RequireAuth(stubValidator{claims: s.claims}, nil, s.logger), "")
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *AuthMiddlewareSuite) TestInvalidToken() {
	rr, _ := s.serve(RequireAuth(stubValidator{err: errors.New("bad")}, nil, s.logger), "Bearer x")
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *AuthMiddlewareSuite) TestRevokedToken() {
	rr, _ := s.serve(RequireAuth(stubValidator{claims: s.claims}, stubRevocation{revoked: true}, s.logger), "Bearer x")
	s.Equal(http.StatusUnauthorized, rr.Code)
	s.Contains(rr.Body.String(), "revoked")
}

func (s *AuthMiddlewareSuite) TestRevocationCheckFailure() {
	rr, _ := s.serve(RequireAuth(stubValidator{claims: s.claims}, stubRevocation{err: errors.New("redis down")}, s.logger), "Bearer x")
	s.Equal(http.StatusInternalServerError, rr.Code)
}

func (s *AuthMiddlewareSuite) TestValidTokenSetsPrincipal() {
	rr, ctx := s.serve(RequireAuth(stubValidator{claims: s.claims}, stubRevocation{}, s.logger), "Bearer x")
	s.Require().Equal(http.StatusNoContent, rr.Code)
	s.Equal(s.userID, requestcontext.UserID(ctx))
	s.Equal(id.RoleUser, requestcontext.Role(ctx))
	s.Equal("jti-1", requestcontext.TokenID(ctx))
}

func (s *AuthMiddlewareSuite) TestUnknownRoleRejected() {
	claims := *s.claims
	claims.Role = "ROOT"
	rr, _ := s.serve(RequireAuth(stubValidator{claims: &claims}, nil, s.logger), "Bearer x")
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func TestRequireRole(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RequireRole(logger, id.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong role is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithPrincipal(req.Context(), id.NewUserID(), id.RoleUser, id.InstitutionID{}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("admin passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithPrincipal(req.Context(), id.NewUserID(), id.RoleAdmin, id.InstitutionID{}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
