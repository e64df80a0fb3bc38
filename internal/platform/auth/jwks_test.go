package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func rsaPublicKeyToJWK(privateKey *rsa.PrivateKey, kid string) JWKSKey {
	pub := &privateKey.PublicKey
	return JWKSKey{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func jwksServer(t *testing.T, keys ...JWKSKey) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKSResponse{Keys: keys})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestJWKSCache_FetchAndCache(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	srv, hits := jwksServer(t, rsaPublicKeyToJWK(privateKey, "k1"))

	cache := NewJWKSCache(srv.URL, 5*time.Minute)
	key, err := cache.GetKey("k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.N.Cmp(privateKey.PublicKey.N) != 0 || key.E != privateKey.PublicKey.E {
		t.Error("fetched key does not match original")
	}

	if _, err := cache.GetKey("k1"); err != nil {
		t.Fatalf("unexpected error on cache hit: %v", err)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("expected a single fetch, got %d", atomic.LoadInt32(hits))
	}
}

func TestJWKSCache_KeyNotFound(t *testing.T) {
	privateKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv, _ := jwksServer(t, rsaPublicKeyToJWK(privateKey, "k1"))

	if _, err := NewJWKSCache(srv.URL, time.Minute).GetKey("missing"); err == nil {
		t.Fatal("expected error for unknown kid")
	}
}

func TestJWKSCache_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewJWKSCache(srv.URL, time.Minute).GetKey("k1"); err == nil {
		t.Fatal("expected error on server failure")
	}
}

func TestParseRSAPublicKey_InvalidModulus(t *testing.T) {
	if _, err := parseRSAPublicKey(JWKSKey{Kty: "RSA", N: "!!!", E: "AQAB"}); err == nil {
		t.Fatal("expected error for invalid modulus")
	}
}

func TestJWTMiddleware_RS256ViaJWKS(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	srv, _ := jwksServer(t, rsaPublicKeyToJWK(privateKey, "k1"))

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-9",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  "Dr. Mehta",
		Roles: []string{RoleDoctor},
	})
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	c, called, err := runMiddleware(t, JWTMiddleware(JWTConfig{JWKSURL: srv.URL}), req)
	if err != nil || !called {
		t.Fatalf("expected valid RS256 token to pass, err=%v", err)
	}
	if got := DisplayNameFromContext(c.Request().Context()); got != "Dr. Mehta" {
		t.Errorf("expected Dr. Mehta, got %q", got)
	}
}

func TestJwksKeyFunc_NoKidHeader(t *testing.T) {
	kf := jwksKeyFunc("http://unused.invalid")
	if _, err := kf(&jwt.Token{Header: map[string]interface{}{}}); err == nil {
		t.Fatal("expected error without kid")
	}
}

func discoveryServer(doc map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(doc)
	}))
}

func TestDiscoverJWKSURL(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": srv.URL, "jwks_uri": srv.URL + "/jwks"})
	}))
	defer srv.Close()

	got, err := discoverJWKSURL(context.Background(), srv.Client(), srv.URL+"/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != srv.URL+"/jwks" {
		t.Errorf("unexpected jwks uri %q", got)
	}
}

func TestDiscoverJWKSURL_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]string
	}{
		{"missing jwks_uri", map[string]string{}},
		{"issuer mismatch", map[string]string{"issuer": "https://other.test", "jwks_uri": "https://other.test/jwks"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := discoveryServer(tt.doc)
			defer srv.Close()
			if _, err := discoverJWKSURL(context.Background(), srv.Client(), srv.URL); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := discoverJWKSURL(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Fatal("expected an error for a 404")
	}
}
