package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aquaregiaswarm-blip/scout/config"
)

var testSecret = []byte("test-secret")

func authProbe(t *testing.T, secret []byte, decorate func(*http.Request)) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	var gotSubject string
	handler := EchoAuthMiddleware(secret)(func(c echo.Context) error {
		gotSubject, _ = c.Get("user_id").(string)
		if sub, ok := SubjectFromContext(c.Request().Context()); !ok || sub != gotSubject {
			t.Errorf("context subject = %q, want %q", sub, gotSubject)
		}
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	decorate(req)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, gotSubject
}

func TestAuthMiddlewareBearerHeader(t *testing.T) {
	tok, err := SignJWT("user-1", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec, subject := authProbe(t, testSecret, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if subject != "user-1" {
		t.Fatalf("subject = %q", subject)
	}
}

func TestAuthMiddlewareCookie(t *testing.T) {
	tok, err := SignJWT("user-2", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec, subject := authProbe(t, testSecret, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "auth", Value: tok})
	})
	if rec.Code != http.StatusOK || subject != "user-2" {
		t.Fatalf("status = %d, subject = %q", rec.Code, subject)
	}
}

func TestAuthMiddlewareQueryParam(t *testing.T) {
	tok, err := SignJWT("user-3", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec, subject := authProbe(t, testSecret, func(r *http.Request) {
		q := r.URL.Query()
		q.Set("token", tok)
		r.URL.RawQuery = q.Encode()
	})
	if rec.Code != http.StatusOK || subject != "user-3" {
		t.Fatalf("status = %d, subject = %q", rec.Code, subject)
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	expired, err := SignJWT("user-1", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	wrongKey, err := SignJWT("user-1", []byte("other-secret"), time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name     string
		decorate func(*http.Request)
	}{
		{"missing token", func(*http.Request) {}},
		{"expired token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) }},
		{"wrong signing key", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+wrongKey) }},
		{"malformed token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-jwt") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := authProbe(t, testSecret, tc.decorate)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestLoadJWTSecret(t *testing.T) {
	cfg := &config.Config{}
	if _, err := LoadJWTSecret(cfg); err == nil {
		t.Fatal("expected error when secret unset")
	}

	cfg.Server.JWTSecret = "abc"
	secret, err := LoadJWTSecret(cfg)
	if err != nil {
		t.Fatalf("LoadJWTSecret: %v", err)
	}
	if string(secret) != "abc" {
		t.Fatalf("secret = %q", secret)
	}
}
