package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		fallback string
		want     string
	}{
		{
			name: "x-locale overrides",
			setup: func(r *http.Request) {
				r.Header.Set("X-Locale", "EN")
				r.Header.Set("Accept-Language", "ru-RU")
			},
			want: "en",
		},
		{
			name: "accept-language used",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "en-US,en;q=0.9")
			},
			want: "en",
		},
		{
			name: "accept-language weights",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "de;q=0.9,ru;q=0.8,en;q=0.1")
			},
			want: "ru",
		},
		{
			name: "unsupported language falls back to russian",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "id-ID")
			},
			want: "ru",
		},
		{
			name:     "configured fallback",
			fallback: "en",
			want:     "en",
		},
		{
			name: "default to ru",
			want: "ru",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.setup != nil {
				tc.setup(req)
			}
			got := detectLocale(req, tc.fallback, nil)
			if got != tc.want {
				t.Fatalf("detectLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLocaleMiddlewareSetsContext(t *testing.T) {
	var seen string
	h := Locale("ru", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-GB")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen != "en" {
		t.Fatalf("locale in context = %q, want en", seen)
	}
	if got := rr.Header().Get("Content-Language"); got != "en" {
		t.Fatalf("Content-Language = %q", got)
	}
}

func TestDetectLocaleByCountry(t *testing.T) {
	countries := map[string]string{"203.0.113.7": "kz", "198.51.100.4": "DE"}
	lookup := func(ip string) (string, error) {
		if c, ok := countries[ip]; ok {
			return c, nil
		}
		return "", errors.New("address not found")
	}
	tests := []struct {
		name   string
		remote string
		accept string
		want   string
	}{
		{"russian speaking country", "203.0.113.7:5000", "", "ru"},
		{"other country", "198.51.100.4:5000", "", "en"},
		{"header beats country", "198.51.100.4:5000", "ru-RU", "ru"},
		{"lookup error uses fallback", "192.0.2.1:5000", "", "en"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.accept != "" {
				req.Header.Set("Accept-Language", tc.accept)
			}
			if got := detectLocale(req, "en", lookup); got != tc.want {
				t.Fatalf("detectLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLocaleFromContext(t *testing.T) {
	ctx := context.Background()
	if got := LocaleFromContext(ctx); got != "ru" {
		t.Fatalf("LocaleFromContext() default = %q, want %q", got, "ru")
	}
	ctx = context.WithValue(ctx, LocaleKey, "en")
	if got := LocaleFromContext(ctx); got != "en" {
		t.Fatalf("LocaleFromContext() with value = %q, want %q", got, "en")
	}
}
