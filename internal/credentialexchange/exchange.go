package credentialexchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// TemporaryCredentials is the triple produced by one exchange.
// It is never persisted directly, only written out as a profile section.
type TemporaryCredentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
}

// Exchange trades the bearer token for temporary credentials scoped to one
// resolved profile. Non success responses surface as UpstreamError and are
// never retried here.
func (c *Client) Exchange(ctx context.Context, accountID, roleName string, token *IdentityToken) (*TemporaryCredentials, error) {
	credsURL := c.serviceURL + fmt.Sprintf(CREDENTIALS_RESOURCE, url.PathEscape(accountID), url.PathEscape(roleName))
	body, err := c.get(ctx, credsURL, token)
	if err != nil {
		return nil, err
	}
	creds := &TemporaryCredentials{}
	if err := json.Unmarshal(body, creds); err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrUpstream)
	}
	return creds, nil
}
