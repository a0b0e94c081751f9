package cmdutils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DevLabFoundry/zaws/internal/credentialexchange"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoProfileConfigured = errors.New("no account and role configured")
)

const (
	// SessionDuration is the assumed lifetime of exchanged credentials.
	// The service does not report one.
	SessionDuration = time.Hour
	// RefreshMargin is 90% of the assumed lifetime - credentials are
	// re-exchanged once this much time has passed since the last exchange.
	RefreshMargin = SessionDuration / 10 * 9
	// pollInterval bounds each sleep inside the wait phase so an interrupt
	// is picked up between increments.
	pollInterval = 120 * time.Second
)

// TokenProvider supplies a decoded identity token, typically via the
// cached or interactive flow.
type TokenProvider interface {
	IdentityToken(ctx context.Context) (*credentialexchange.IdentityToken, error)
}

// CredentialAPI is the remote surface of the credential service.
type CredentialAPI interface {
	AccountRoles(ctx context.Context, token *credentialexchange.IdentityToken) ([]credentialexchange.Profile, error)
	Exchange(ctx context.Context, accountID, roleName string, token *credentialexchange.IdentityToken) (*credentialexchange.TemporaryCredentials, error)
}

// Clock abstracts wall time so the refresh loop is testable.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time                         { return time.Now() }
func (wallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// LoginParams are the inputs to one login or require invocation.
type LoginParams struct {
	AccountName string
	RoleName    string
	AwsProfile  string
	Refresh     bool
}

// LoginSvc coordinates resolver, exchange client, credentials file writer
// and last-update tracker.
type LoginSvc struct {
	api      CredentialAPI
	provider TokenProvider
	writer   credentialexchange.FileWriter
	tracker  credentialexchange.LastUpdateTracker
	clock    Clock
}

func New(api CredentialAPI, provider TokenProvider, writer credentialexchange.FileWriter, tracker credentialexchange.LastUpdateTracker) *LoginSvc {
	return &LoginSvc{
		api:      api,
		provider: provider,
		writer:   writer,
		tracker:  tracker,
		clock:    wallClock{},
	}
}

func (s *LoginSvc) WithClock(clock Clock) *LoginSvc {
	s.clock = clock
	return s
}

// Login performs the exchange once, or keeps re-exchanging ahead of expiry
// when params.Refresh is set, until the context is cancelled.
//
// A missing account or role falls back to the last successful exchange's
// pair. Any resolver or exchange failure aborts without a partial write.
// A failure after the wait phase ends the whole loop - there is no backoff
// or retry policy.
func (s *LoginSvc) Login(ctx context.Context, params LoginParams) error {
	account, role := params.AccountName, params.RoleName
	if account == "" || role == "" {
		last := s.tracker.Load()
		if last.AccountName == "" {
			return fmt.Errorf("either specify an account and role or set a default first: %w", ErrNoProfileConfigured)
		}
		account, role = last.AccountName, last.RoleName
	}

	for {
		if err := s.exchangeOnce(ctx, account, role, params.AwsProfile); err != nil {
			return err
		}
		if !params.Refresh {
			return nil
		}
		// the loop always reuses the pair resolved above, the tracker is
		// not re-consulted mid flight
		if !s.wait(ctx) {
			return nil
		}
	}
}

// Require performs exactly one non looping login if the last exchange is
// past its refresh deadline or the hinted profile differs from the last
// one. Otherwise it is a no-op.
func (s *LoginSvc) Require(ctx context.Context, params LoginParams) error {
	last := s.tracker.Load()
	remaining := time.Unix(last.Timestamp, 0).Add(RefreshMargin).Sub(s.clock.Now())

	hintDiffers := params.AccountName != "" &&
		(params.AccountName != last.AccountName ||
			(params.RoleName != "" && params.RoleName != last.RoleName))

	if remaining >= 0 && !hintDiffers {
		log.Debugf("credentials for %s %s still fresh for %s", last.AccountName, last.RoleName, remaining.Round(time.Second))
		return nil
	}
	params.Refresh = false
	return s.Login(ctx, params)
}

// Profiles resolves the full entitlement list for the current identity.
func (s *LoginSvc) Profiles(ctx context.Context) ([]credentialexchange.Profile, error) {
	token, err := s.provider.IdentityToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.AccountRoles(ctx, token)
}

func (s *LoginSvc) exchangeOnce(ctx context.Context, account, role, awsProfile string) error {
	token, err := s.provider.IdentityToken(ctx)
	if err != nil {
		return err
	}
	profiles, err := s.api.AccountRoles(ctx, token)
	if err != nil {
		return err
	}
	profile, err := credentialexchange.FindProfile(profiles, account, role)
	if err != nil {
		return err
	}
	creds, err := s.api.Exchange(ctx, profile.AccountID, profile.RoleName, token)
	if err != nil {
		return err
	}

	log.Infof("Writing temporary AWS credentials for %s %s", account, role)
	// credentials file first, tracker second - a crash in between leaves a
	// valid file with a stale timestamp, which only costs an extra exchange
	if err := s.writer.Write(awsProfile, creds); err != nil {
		return err
	}
	return s.tracker.Save(credentialexchange.LastUpdate{
		Timestamp:   s.clock.Now().Unix(),
		AccountName: account,
		RoleName:    role,
	})
}

// wait sleeps in bounded increments until the refresh deadline derived from
// the just saved record. Returns false when the context was cancelled,
// which is a clean exit, not an error.
func (s *LoginSvc) wait(ctx context.Context) bool {
	last := s.tracker.Load()
	deadline := time.Unix(last.Timestamp, 0).Add(RefreshMargin)
	log.Infof("Waiting %.0f minutes before refreshing credentials", deadline.Sub(s.clock.Now()).Minutes())

	for {
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return true
		}
		increment := remaining
		if increment > pollInterval {
			increment = pollInterval
		}
		select {
		case <-ctx.Done():
			return false
		case <-s.clock.After(increment):
		}
	}
}
