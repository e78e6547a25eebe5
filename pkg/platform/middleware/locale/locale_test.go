package locale

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"certhub/pkg/requestcontext"
)

func TestMatch(t *testing.T) {
	assert.Equal(t, "fr", Match("fr-CA,fr;q=0.9,en;q=0.8"))
	assert.Equal(t, "ar", Match("ar-EG"))
	assert.Equal(t, "en", Match("de-DE"))
	assert.Equal(t, "en", Match(""))
}

func TestMiddlewareUsesPathLocale(t *testing.T) {
	r := chi.NewRouter()
	var got string
	r.With(Middleware).Get("/{locale}/verify/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Locale(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/fr/verify/abc", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, "fr", got)
	assert.Equal(t, "fr", rr.Header().Get("Content-Language"))
}

func TestMiddlewareFallsBackToHeader(t *testing.T) {
	r := chi.NewRouter()
	var got string
	r.With(Middleware).Get("/{locale}/verify/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Locale(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/xx/verify/abc", nil)
	req.Header.Set("Accept-Language", "ar")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "ar", got)
}

func TestLandingPath(t *testing.T) {
	assert.Equal(t, "/fr/dashboard/admin", LandingPath("fr", "/dashboard/admin"))
	assert.Equal(t, "/en/dashboard", LandingPath("zz", "/dashboard"))
}
