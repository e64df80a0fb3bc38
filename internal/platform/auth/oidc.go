package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const discoveryTimeout = 10 * time.Second

type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// discoverJWKSURL reads issuer/.well-known/openid-configuration and returns
// its jwks_uri. The document must name the same issuer tokens are checked
// against.
func discoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	base := strings.TrimRight(issuer, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/.well-known/openid-configuration", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oidc discovery: status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("oidc discovery: document has no jwks_uri")
	}
	if doc.Issuer != "" && strings.TrimRight(doc.Issuer, "/") != base {
		return "", fmt.Errorf("oidc discovery: document issuer %q does not match %q", doc.Issuer, issuer)
	}
	return doc.JWKSURI, nil
}
