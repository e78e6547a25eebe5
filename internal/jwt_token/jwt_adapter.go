package jwttoken

import (
	authmw "certhub/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *Claims) *authmw.JWTClaims {
	return &authmw.JWTClaims{
		UserID:        claims.UserID,
		Role:          claims.Role,
		InstitutionID: claims.InstitutionID,
		JTI:           claims.ID,
		ExpiresAt:     claims.ExpiresAt.Time,
	}
}

// JWTServiceAdapter exposes JWTService as the middleware's validator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
