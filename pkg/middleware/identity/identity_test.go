package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sbportal/editlock/pkg/server/router"
	ginrouter "github.com/sbportal/editlock/pkg/server/router/gin"
)

const testSecret = "test-secret"

func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := ginrouter.NewRouter()
	r.Use(Authenticate(Config{Secret: testSecret}))
	r.GET("/me", func(c router.Context) error {
		id, ok := FromContext(c.Request().Context())
		if !ok {
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "no identity"})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"user_id": id.UserID,
			"name":    id.FullName,
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, authorization string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthenticateValidToken(t *testing.T) {
	srv := newAuthServer(t)
	token, err := Token(testSecret, Identity{UserID: "alice", FullName: "Alice A"})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	resp := get(t, srv, "Bearer "+token)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthenticateMissingHeader(t *testing.T) {
	srv := newAuthServer(t)
	if resp := get(t, srv, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	srv := newAuthServer(t)
	for _, header := range []string{"Bearer", "Token abc", "Bearer a b"} {
		if resp := get(t, srv, header); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status for %q = %d, want 401", header, resp.StatusCode)
		}
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	srv := newAuthServer(t)
	token, err := Token("other-secret", Identity{UserID: "alice", FullName: "Alice A"})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	if resp := get(t, srv, "Bearer "+token); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthenticateEmptySubject(t *testing.T) {
	srv := newAuthServer(t)
	token, err := Token(testSecret, Identity{FullName: "No Subject"})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	if resp := get(t, srv, "Bearer "+token); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthenticateRejectsUnsignedToken(t *testing.T) {
	srv := newAuthServer(t)
	claims := Claims{
		Name:             "Alice A",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign unsigned token: %v", err)
	}

	if resp := get(t, srv, "Bearer "+token); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestFromContextUnauthenticated(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext() reported an identity on an empty context")
	}
	if _, ok := FromContext(nil); ok {
		t.Error("FromContext() reported an identity on a nil context")
	}
}
