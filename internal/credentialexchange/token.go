package credentialexchange

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrMissingIdentityClaim = errors.New("invalid token - missing the managed-id claim")
)

// IdentityToken is a decoded bearer token.
//
// ManagedID is the caller identity claim the credential service routes on.
// Claims are decoded without signature verification - the service is the
// verifier, this side only reads routing claims.
type IdentityToken struct {
	AccessToken string
	ManagedID   string
	Claims      jwt.MapClaims
}

// ParseIdentityToken decodes the raw bearer token and enforces the
// presence of the managed-id claim.
func ParseIdentityToken(accessToken string) (*IdentityToken, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrAuthenticationFailed)
	}
	managedID, ok := claims[MANAGED_ID_CLAIM].(string)
	if !ok || managedID == "" {
		return nil, fmt.Errorf("check your token configuration: %w", ErrMissingIdentityClaim)
	}
	return &IdentityToken{
		AccessToken: accessToken,
		ManagedID:   managedID,
		Claims:      claims,
	}, nil
}

// Expiry returns the exp claim, or the zero time when absent.
func (t *IdentityToken) Expiry() time.Time {
	exp, err := t.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
