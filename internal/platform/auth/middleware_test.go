package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, sub string, roles []string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(authHeader string) (*httptest.ResponseRecorder, context.Context) {
	e := echo.New()
	var captured context.Context
	handler := JWTMiddleware(JWTConfig{SigningKey: testKey})(func(c echo.Context) error {
		captured = c.Request().Context()
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, captured
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	userID := uuid.New()
	token := signToken(t, userID.String(), []string{"parent"})

	rec, ctx := doRequest("Bearer " + token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := UserIDFromContext(ctx); got != userID {
		t.Errorf("expected user id %s, got %s", userID, got)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 1 || roles[0] != "parent" {
		t.Errorf("unexpected roles: %v", roles)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	rec, _ := doRequest("")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_MalformedHeader(t *testing.T) {
	rec, _ := doRequest("Token abc")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_BadSignature(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	rec, _ := doRequest("Bearer " + token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_NonUUIDSubject(t *testing.T) {
	token := signToken(t, "not-a-uuid", nil)
	rec, _ := doRequest("Bearer " + token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestUserIDFromContext_Unauthenticated(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != uuid.Nil {
		t.Errorf("expected uuid.Nil, got %s", got)
	}
}
