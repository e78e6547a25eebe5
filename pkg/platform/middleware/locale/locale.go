// Package locale resolves the request locale from the {locale} path segment,
// falling back to Accept-Language.
package locale

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"certhub/pkg/requestcontext"
)

// Supported lists the locales served, default first.
var Supported = []string{"en", "fr", "ar"}

var (
	supportedTags = []language.Tag{language.English, language.French, language.Arabic}
	matcher       = language.NewMatcher(supportedTags)
)

// Match finds the best supported locale for a tag or Accept-Language value.
func Match(value string) string {
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		tag, err := language.Parse(value)
		if err != nil {
			return Supported[0]
		}
		tags = []language.Tag{tag}
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(Supported) {
		return Supported[0]
	}
	return Supported[idx]
}

// IsSupported reports whether lang is served as-is.
func IsSupported(lang string) bool {
	lang = strings.ToLower(lang)
	for _, s := range Supported {
		if s == lang {
			return true
		}
	}
	return false
}

// Middleware stores the resolved locale in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loc := strings.ToLower(chi.URLParam(r, "locale"))
		if !IsSupported(loc) {
			loc = Match(r.Header.Get("Accept-Language"))
		}
		w.Header().Set("Content-Language", loc)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithLocale(r.Context(), loc)))
	})
}

// LandingPath returns the localized path for a dashboard route, e.g. /fr/dashboard.
func LandingPath(loc, path string) string {
	if !IsSupported(loc) {
		loc = Supported[0]
	}
	return "/" + loc + path
}
