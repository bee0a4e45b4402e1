package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims *models.JwtCustomClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func serve(mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, string, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	err := mw(func(c echo.Context) error {
		seen = UserID(c)
		return c.NoContent(http.StatusOK)
	})(c)
	return rec, seen, err
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestJWTAuthMiddleware(t *testing.T) {
	valid := signToken(t, testSecret, &models.JwtCustomClaims{
		UserID: "bob",
		Name:   "Bob",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	expired := signToken(t, testSecret, &models.JwtCustomClaims{
		UserID: "bob",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	subjectOnly := signToken(t, testSecret, &models.JwtCustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "carol"},
	})

	tests := []struct {
		name   string
		header string
		status int
		user   string
	}{
		{"valid", "Bearer " + valid, 0, "bob"},
		{"subject fallback", "Bearer " + subjectOnly, 0, "carol"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + signToken(t, "other", &models.JwtCustomClaims{UserID: "bob"}), http.StatusUnauthorized, ""},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"no user", "Bearer " + signToken(t, testSecret, &models.JwtCustomClaims{}), http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, user, err := serve(JWTAuthMiddleware(testSecret), tt.header)
			if got := statusOf(err); got != tt.status {
				t.Fatalf("status = %d, want %d (err %v)", got, tt.status, err)
			}
			if user != tt.user {
				t.Errorf("UserID = %q, want %q", user, tt.user)
			}
		})
	}
}

type fakeVerifier map[string]*auth.Token

func (f fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if tok, ok := f[idToken]; ok {
		return tok, nil
	}
	return nil, errors.New("invalid token")
}

func TestFirebaseAuthMiddleware(t *testing.T) {
	verifier := fakeVerifier{
		"good": {UID: "uid-1", Claims: map[string]interface{}{"name": "Alice", "picture": "https://img.example.com/a.png"}},
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	c := e.NewContext(req, httptest.NewRecorder())

	err := FirebaseAuthMiddleware(verifier)(func(c echo.Context) error {
		actor := Actor(c)
		if actor.ID != "uid-1" || actor.Name != "Alice" || actor.Avatar == "" {
			t.Errorf("Actor() = %+v", actor)
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("middleware error: %v", err)
	}

	if _, _, err := serve(FirebaseAuthMiddleware(verifier), "Bearer bad"); statusOf(err) != http.StatusUnauthorized {
		t.Errorf("bad token error = %v, want 401", err)
	}
}

func TestActorFallsBackToUserID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if got := UserID(c); got != "" {
		t.Errorf("UserID() on an anonymous request = %q", got)
	}
	c.Set("userID", "bob")
	if got := Actor(c); got.ID != "bob" {
		t.Errorf("Actor() = %+v, want bob", got)
	}
}

func TestServiceTokenMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{"valid token", "svc", "svc", http.StatusOK},
		{"missing token", "svc", "", http.StatusUnauthorized},
		{"wrong token", "svc", "svcx", http.StatusUnauthorized},
		{"nothing configured", "", "anything", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set(ServiceTokenHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			err := ServiceTokenMiddleware(tt.configured)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})(e.NewContext(req, rec))

			status := rec.Code
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}
