package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

var LocaleKey = localeContextKey{}

// Supported lists the locales the bot has message catalogs for. The first
// entry is the matcher's fallback.
var Supported = []language.Tag{language.Russian, language.English}

var matcher = language.NewMatcher(Supported)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// russianSpeaking are the countries whose clients default to Russian when
// they send no language preference.
var russianSpeaking = map[string]bool{"RU": true, "BY": true, "KZ": true, "KG": true}

// Locale stores the negotiated locale in the request context. X-Locale wins
// over Accept-Language, which wins over the client's country. lookup may be
// nil.
func Locale(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, defaultLocale, lookup)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string, lookup CountryLookup) string {
	explicit := r.Header.Get("X-Locale")
	accept := r.Header.Get("Accept-Language")
	if explicit == "" && accept == "" {
		if country := countryOf(r, lookup); country != "" {
			if russianSpeaking[country] {
				return baseOf(language.Russian)
			}
			return baseOf(language.English)
		}
		return NormalizeLocale(fallback)
	}
	tag, _ := language.MatchStrings(matcher, explicit, accept)
	return baseOf(tag)
}

// countryOf returns "" when there is no lookup or it fails.
func countryOf(r *http.Request, lookup CountryLookup) string {
	if lookup == nil {
		return ""
	}
	country, err := lookup(ClientIP(r))
	if err != nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(country))
}

// NormalizeLocale maps any language string onto a supported base language.
func NormalizeLocale(raw string) string {
	tag, _ := language.MatchStrings(matcher, raw)
	return baseOf(tag)
}

func baseOf(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}

// LocaleFromContext returns the negotiated locale, or Russian when the
// request never passed through Locale.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return baseOf(Supported[0])
}
