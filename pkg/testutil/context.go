package testutil

import (
	"net/http"

	id "certhub/pkg/domain"
	"certhub/pkg/requestcontext"
)

// AsPrincipal attaches an authenticated user, role and institution to the request,
// the way the auth middleware would.
func AsPrincipal(req *http.Request, userID id.UserID, role id.Role, institutionID id.InstitutionID) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), userID, role, institutionID)
	return req.WithContext(ctx)
}

// AsAdmin attaches an ADMIN principal.
func AsAdmin(req *http.Request, userID id.UserID) *http.Request {
	return AsPrincipal(req, userID, id.RoleAdmin, id.InstitutionID{})
}

// AsUser attaches a USER principal without an institution.
func AsUser(req *http.Request, userID id.UserID) *http.Request {
	return AsPrincipal(req, userID, id.RoleUser, id.InstitutionID{})
}

// WithClient attaches client IP and user agent metadata.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	ctx := requestcontext.WithClientMetadata(req.Context(), ip, userAgent)
	return req.WithContext(ctx)
}
