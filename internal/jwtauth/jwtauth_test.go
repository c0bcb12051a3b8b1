package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

type mockOIDC struct {
	srv       *httptest.Server
	issuer    string
	jwksPath  string
	metaExtra map[string]any
}

func newMockOIDC(t *testing.T, keysJSON []byte, metaExtra map[string]any) *mockOIDC {
	t.Helper()
	m := &mockOIDC{jwksPath: "/keys", metaExtra: metaExtra}
	handler := http.NewServeMux()
	handler.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		meta := map[string]any{
			"issuer":   m.issuer,
			"jwks_uri": m.issuer + m.jwksPath,
		}
		for k, v := range m.metaExtra {
			meta[k] = v
		}
		_ = json.NewEncoder(w).Encode(meta)
	})
	handler.HandleFunc(m.jwksPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysJSON)
	})
	m.srv = httptest.NewServer(handler)
	m.issuer = m.srv.URL
	return m
}

func (m *mockOIDC) Close() { m.srv.Close() }

func genRSA(t *testing.T) (*rsa.PrivateKey, string, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	kid := "test-key"
	jwk := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, kid, b
}

func signToken(t *testing.T, pk *rsa.PrivateKey, kid string, headerTyp string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	if headerTyp != "" {
		tok.Header["typ"] = headerTyp
	}
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func baseConfig(issuer, aud string) *Config {
	cfg := DefaultConfig()
	cfg.Issuer = issuer
	cfg.ExpectedAudiences = []string{aud}
	cfg.Leeway = 0
	return cfg
}

func baseClaims(issuer, aud string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": issuer,
		"sub": "user-123",
		"sid": "6f1c2b8e-1e0a-4c5e-9d43-8a1f6f0f4c11",
		"aud": aud,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
}

const testAud = "https://realtime.marketplace.example"

func newDiscovery(t *testing.T, mutate func(*Config)) (*discoveryAuthenticator, *mockOIDC, *rsa.PrivateKey, string) {
	t.Helper()
	pk, kid, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks, nil)
	t.Cleanup(oidc.Close)

	cfg := baseConfig(oidc.issuer, testAud)
	if mutate != nil {
		mutate(cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a, err := NewFromDiscovery(ctx, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return a, oidc, pk, kid
}

func TestAuthenticator_HappyPath(t *testing.T) {
	a, oidc, pk, kid := newDiscovery(t, nil)

	claims := baseClaims(oidc.issuer, testAud)
	claims["roles"] = []string{"buyer", "seller"}
	tok := signToken(t, pk, kid, "", claims)

	ui, err := a.CheckAuthentication(context.Background(), tok)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "user-123" {
		t.Fatalf("want sub user-123, got %s", ui.UserID())
	}
	if ui.SessionID() != "6f1c2b8e-1e0a-4c5e-9d43-8a1f6f0f4c11" {
		t.Fatalf("unexpected sid: %q", ui.SessionID())
	}
	if !slices.Equal(ui.Roles(), []string{"buyer", "seller"}) {
		t.Fatalf("unexpected roles: %v", ui.Roles())
	}

	var out struct {
		Sid string `json:"sid"`
	}
	if err := ui.Claims(&out); err != nil {
		t.Fatalf("claims: %v", err)
	}
	if out.Sid != ui.SessionID() {
		t.Fatalf("sid roundtrip mismatch: %q", out.Sid)
	}
}

func TestAuthenticator_DiscoveryMissingJWKS(t *testing.T) {
	_, _, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks, map[string]any{"jwks_uri": ""})
	defer oidc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := NewFromDiscovery(ctx, baseConfig(oidc.issuer, "aud")); err == nil {
		t.Fatalf("expected error due to missing jwks_uri")
	}
}

func TestAuthenticator_AudienceArray(t *testing.T) {
	a, oidc, pk, kid := newDiscovery(t, nil)

	claims := baseClaims(oidc.issuer, testAud)
	claims["aud"] = []string{"https://other", testAud}
	if _, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "", claims)); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestAuthenticator_AdditionalAudiences(t *testing.T) {
	extra := "http://localhost:8080"
	a, oidc, pk, kid := newDiscovery(t, func(c *Config) {
		c.ExpectedAudiences = []string{testAud, extra}
	})

	claims := baseClaims(oidc.issuer, extra)
	if _, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "", claims)); err != nil {
		t.Fatalf("check (extra audience) failed: %v", err)
	}

	claims["aud"] = "https://unknown"
	if _, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "", claims)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown audience, got %v", err)
	}
}

func TestAuthenticator_RequiredRoles(t *testing.T) {
	a, oidc, pk, kid := newDiscovery(t, func(c *Config) {
		c.RequiredRoles = []string{"admin", "support"}
	})

	claims := baseClaims(oidc.issuer, testAud)
	claims["role"] = "buyer"
	if _, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "", claims)); !errors.Is(err, ErrInsufficientScope) {
		t.Fatalf("want ErrInsufficientScope, got %v", err)
	}

	claims["role"] = "buyer,support"
	ui, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "", claims))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !slices.Contains(ui.Roles(), "support") {
		t.Fatalf("expected support role, got %v", ui.Roles())
	}
}

func TestAuthenticator_AccessTokenType(t *testing.T) {
	a, oidc, pk, kid := newDiscovery(t, func(c *Config) { c.RequireAccessTokenType = true })

	claims := baseClaims(oidc.issuer, testAud)
	if _, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "JWT", claims)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "at+jwt", claims)); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestAuthenticator_IssuerMismatch(t *testing.T) {
	a, oidc, pk, kid := newDiscovery(t, nil)

	claims := baseClaims(oidc.issuer, testAud)
	claims["iss"] = "https://evil.example.com"
	if _, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "", claims)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestAuthenticator_Expired(t *testing.T) {
	a, oidc, pk, kid := newDiscovery(t, nil)

	claims := baseClaims(oidc.issuer, testAud)
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	if _, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "", claims)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestAuthenticator_EmptyToken(t *testing.T) {
	a, _, _, _ := newDiscovery(t, nil)
	if _, err := a.CheckAuthentication(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestStatic_ValidatesAgainstFixedKey(t *testing.T) {
	pk, kid, _ := genRSA(t)
	cfg := baseConfig("https://id.marketplace.example", testAud)
	a, err := newStaticWithKeyfunc(cfg, func(*jwt.Token) (any, error) { return &pk.PublicKey, nil })
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	claims := baseClaims(cfg.Issuer, testAud)
	delete(claims, "sid")
	ui, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "", claims))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.SessionID() != "" {
		t.Fatalf("expected empty sid, got %q", ui.SessionID())
	}

	claims["sub"] = ""
	if _, err := a.CheckAuthentication(context.Background(), signToken(t, pk, kid, "", claims)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for missing sub, got %v", err)
	}
}

func TestStatic_DisallowedAlg(t *testing.T) {
	cfg := baseConfig("https://id.marketplace.example", testAud)
	secret := []byte("shared-secret")
	a, err := newStaticWithKeyfunc(cfg, func(*jwt.Token) (any, error) { return secret, nil })
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims(cfg.Issuer, testAud))
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := a.CheckAuthentication(context.Background(), s); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for HS256, got %v", err)
	}
}

func TestStatic_ConfigValidation(t *testing.T) {
	kf := func(*jwt.Token) (any, error) { return nil, nil }
	if _, err := newStaticWithKeyfunc(nil, kf); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := newStaticWithKeyfunc(&Config{ExpectedAudiences: []string{"a"}}, kf); err == nil {
		t.Fatalf("expected error for missing issuer")
	}
	if _, err := newStaticWithKeyfunc(&Config{Issuer: "i"}, kf); err == nil {
		t.Fatalf("expected error for missing audience")
	}
}
