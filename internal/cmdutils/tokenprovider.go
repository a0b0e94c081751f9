package cmdutils

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/DevLabFoundry/zaws/internal/credentialexchange"
	log "github.com/sirupsen/logrus"
)

// tokenExpirySlack rejects cached tokens about to expire so an exchange
// does not start with a token the service will refuse moments later.
const tokenExpirySlack = time.Minute

// TokenFetcher performs the interactive acquisition of a raw bearer token.
type TokenFetcher interface {
	FetchToken(ctx context.Context) (string, error)
}

// TokenFetcherFunc adapts a plain function to the TokenFetcher interface.
type TokenFetcherFunc func(ctx context.Context) (string, error)

func (f TokenFetcherFunc) FetchToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// TokenCache is the subset of the token store the provider needs.
type TokenCache interface {
	Token() (string, error)
	SaveToken(token string) error
}

// CachingTokenProvider resolves a bearer token in order of preference:
// the ZAWS_ACCESS_TOKEN env var, the OS secret store cache, and finally
// the interactive fetcher. Freshly fetched tokens are cached best effort.
type CachingTokenProvider struct {
	cache   TokenCache
	fetcher TokenFetcher
	clock   Clock
}

func NewCachingTokenProvider(cache TokenCache, fetcher TokenFetcher) *CachingTokenProvider {
	return &CachingTokenProvider{
		cache:   cache,
		fetcher: fetcher,
		clock:   wallClock{},
	}
}

func (p *CachingTokenProvider) WithClock(clock Clock) *CachingTokenProvider {
	p.clock = clock
	return p
}

func (p *CachingTokenProvider) IdentityToken(ctx context.Context) (*credentialexchange.IdentityToken, error) {
	if raw := os.Getenv(credentialexchange.ACCESS_TOKEN_VAR); raw != "" {
		return credentialexchange.ParseIdentityToken(raw)
	}

	if raw, err := p.cache.Token(); err == nil && raw != "" {
		token, err := credentialexchange.ParseIdentityToken(raw)
		if err == nil && token.Expiry().Sub(p.clock.Now()) > tokenExpirySlack {
			log.Debug("reusing cached bearer token")
			return token, nil
		}
	}

	raw, err := p.fetcher.FetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, credentialexchange.ErrAuthenticationFailed)
	}
	token, err := credentialexchange.ParseIdentityToken(raw)
	if err != nil {
		return nil, err
	}
	if err := p.cache.SaveToken(raw); err != nil {
		// a broken cache only costs an extra interactive flow next time
		log.Warnf("could not cache token: %s", err)
	}
	return token, nil
}
