package credentialexchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrUpstream = errors.New("credential service request failed")
)

// DefaultRequestTimeout bounds every call to the credential service.
// The service itself holds no long running operations.
const DefaultRequestTimeout = 30 * time.Second

// UpstreamError keeps the status and body of a non success response
// inspectable by the caller. It unwraps to ErrUpstream.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("credential service returned %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// Client talks to the credential service.
type Client struct {
	serviceURL string
	httpClient *http.Client
}

func NewClient(serviceURL string) *Client {
	return &Client{
		serviceURL: serviceURL,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
	}
}

func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// get performs an authorized GET against the service returning the raw body.
// Any non 2xx response becomes an UpstreamError.
func (c *Client) get(ctx context.Context, url string, token *IdentityToken) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token.AccessToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrUpstream)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrUpstream)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
