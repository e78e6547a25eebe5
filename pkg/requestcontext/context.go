// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
//	userID := requestcontext.UserID(ctx)
//	role := requestcontext.Role(ctx)
//	now := requestcontext.Now(ctx)
//
// Service tests inject them directly:
//
//	ctx = requestcontext.WithPrincipal(ctx, userID, domain.RoleAdmin, id.InstitutionID{})
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "certhub/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	userIDKey        struct{}
	roleKey          struct{}
	institutionIDKey struct{}
	tokenIDKey       struct{}
	clientIPKey      struct{}
	userAgentKey     struct{}
	requestIDKey     struct{}
	requestTimeKey   struct{}
	localeKey        struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyUserID        = userIDKey{}
	ContextKeyRole          = roleKey{}
	ContextKeyInstitutionID = institutionIDKey{}
	ContextKeyTokenID       = tokenIDKey{}
	ContextKeyClientIP      = clientIPKey{}
	ContextKeyUserAgent     = userAgentKey{}
	ContextKeyRequestID     = requestIDKey{}
	ContextKeyRequestTime   = requestTimeKey{}
	ContextKeyLocale        = localeKey{}
)

// -----------------------------------------------------------------------------
// Principal (user, role, institution, token id)
// -----------------------------------------------------------------------------

// UserID retrieves the authenticated user ID from the context.
// Returns the zero value (nil UUID) if not set.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// Role retrieves the authenticated user's role. Empty when anonymous.
func Role(ctx context.Context) id.Role {
	if role, ok := ctx.Value(ContextKeyRole).(id.Role); ok {
		return role
	}
	return ""
}

// InstitutionID retrieves the institution the authenticated user belongs to.
// Returns the zero value when the user has no institution.
func InstitutionID(ctx context.Context) id.InstitutionID {
	if instID, ok := ctx.Value(ContextKeyInstitutionID).(id.InstitutionID); ok {
		return instID
	}
	return id.InstitutionID{}
}

// WithPrincipal injects the authenticated user, role and institution in one call.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithPrincipal(ctx context.Context, userID id.UserID, role id.Role, institutionID id.InstitutionID) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, userID)
	ctx = context.WithValue(ctx, ContextKeyRole, role)
	ctx = context.WithValue(ctx, ContextKeyInstitutionID, institutionID)
	return ctx
}

// TokenID retrieves the jti of the bearer token that authenticated the request.
func TokenID(ctx context.Context) string {
	if jti, ok := ctx.Value(ContextKeyTokenID).(string); ok {
		return jti
	}
	return ""
}

// WithTokenID injects the bearer token's jti into the context.
func WithTokenID(ctx context.Context, jti string) context.Context {
	return context.WithValue(ctx, ContextKeyTokenID, jti)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Locale retrieves the resolved locale tag (en, fr, ar). Defaults to "en".
func Locale(ctx context.Context) string {
	if loc, ok := ctx.Value(ContextKeyLocale).(string); ok && loc != "" {
		return loc
	}
	return "en"
}

// WithLocale injects the resolved locale tag into the context.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, ContextKeyLocale, locale)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, cron jobs).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// Detach returns a background context carrying the request-scoped values that
// outlive the request: request id, client metadata, principal and time.
// Used for fire-and-forget work started from a handler.
func Detach(ctx context.Context) context.Context {
	out := context.Background()
	for _, key := range []any{
		ContextKeyUserID, ContextKeyRole, ContextKeyInstitutionID,
		ContextKeyClientIP, ContextKeyUserAgent, ContextKeyRequestID,
		ContextKeyRequestTime, ContextKeyLocale,
	} {
		if v := ctx.Value(key); v != nil {
			out = context.WithValue(out, key, v)
		}
	}
	return out
}
