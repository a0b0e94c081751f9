package credentialexchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

var (
	ErrProfileNotFound = errors.New("profile does not exist")
)

// Profile is an (account, role) pair the caller is entitled to assume.
// AccountID is resolved server side and opaque to the caller.
type Profile struct {
	AccountName string `json:"account_name"`
	RoleName    string `json:"role_name"`
	AccountID   string `json:"account_id"`
}

type accountRolesResponse struct {
	AccountRoles []Profile `json:"account_roles"`
}

// AccountRoles lists the profiles the token's identity is entitled to.
// Ordering is whatever the service returned.
func (c *Client) AccountRoles(ctx context.Context, token *IdentityToken) ([]Profile, error) {
	if token.ManagedID == "" {
		return nil, fmt.Errorf("cannot resolve roles: %w", ErrMissingIdentityClaim)
	}
	rolesURL := c.serviceURL + fmt.Sprintf(ROLES_RESOURCE, url.PathEscape(token.ManagedID))
	body, err := c.get(ctx, rolesURL, token)
	if err != nil {
		return nil, err
	}
	resp := &accountRolesResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrUpstream)
	}
	return resp.AccountRoles, nil
}

// FindProfile returns the exact (accountName, roleName) match.
func FindProfile(profiles []Profile, accountName, roleName string) (*Profile, error) {
	for _, p := range profiles {
		if p.AccountName == accountName && p.RoleName == roleName {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("profile %q %q %w", accountName, roleName, ErrProfileNotFound)
}
