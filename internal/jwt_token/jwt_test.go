package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
)

func newService(ttl time.Duration) *JWTService {
	return NewJWTService("test-signing-key", "test-issuer", ttl)
}

func Test_GenerateAccessToken(t *testing.T) {
	svc := newService(time.Hour)
	userID := id.NewUserID()
	instID := id.NewInstitutionID()

	issued, err := svc.GenerateAccessToken(userID, id.RoleInstitution, instID)
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
	require.NotEmpty(t, issued.JTI)

	claims, err := svc.ValidateToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "INSTITUTION", claims.Role)
	assert.Equal(t, instID.String(), claims.InstitutionID)
	assert.Equal(t, issued.JTI, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_GenerateAccessToken_NoInstitution(t *testing.T) {
	svc := newService(time.Hour)
	issued, err := svc.GenerateAccessToken(id.NewUserID(), id.RoleUser, id.InstitutionID{})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(issued.Token)
	require.NoError(t, err)
	assert.Empty(t, claims.InstitutionID)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := newService(time.Hour).ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	svc := newService(-time.Hour)
	issued, err := svc.GenerateAccessToken(id.NewUserID(), id.RoleUser, id.InstitutionID{})
	require.NoError(t, err)

	_, err = svc.ValidateToken(issued.Token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token has expired")
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	issued, err := newService(time.Hour).GenerateAccessToken(id.NewUserID(), id.RoleAdmin, id.InstitutionID{})
	require.NoError(t, err)

	other := NewJWTService("another-key", "test-issuer", time.Hour)
	_, err = other.ValidateToken(issued.Token)
	require.Error(t, err)
}

func Test_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID: id.NewUserID().String(),
		Role:   "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newService(time.Hour).ValidateToken(signed)
	require.Error(t, err)
}

func Test_AdapterCarriesJTI(t *testing.T) {
	svc := newService(time.Hour)
	issued, err := svc.GenerateAccessToken(id.NewUserID(), id.RoleAdmin, id.InstitutionID{})
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(svc).ValidateToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.JTI, claims.JTI)
	assert.Equal(t, "ADMIN", claims.Role)
}
