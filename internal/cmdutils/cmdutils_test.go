package cmdutils_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/DevLabFoundry/zaws/internal/cmdutils"
	"github.com/DevLabFoundry/zaws/internal/credentialexchange"
	ini "gopkg.in/ini.v1"
)

func unsignedJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return base64.RawURLEncoding.EncodeToString(b)
	}
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	return fmt.Sprintf("%s.%s.%s", enc(header), enc(claims), base64.RawURLEncoding.EncodeToString([]byte("sig")))
}

type mockProvider struct {
	identityToken func(ctx context.Context) (*credentialexchange.IdentityToken, error)
}

func (m *mockProvider) IdentityToken(ctx context.Context) (*credentialexchange.IdentityToken, error) {
	return m.identityToken(ctx)
}

type mockAPI struct {
	accountRoles func(ctx context.Context, token *credentialexchange.IdentityToken) ([]credentialexchange.Profile, error)
	exchange     func(ctx context.Context, accountID, roleName string, token *credentialexchange.IdentityToken) (*credentialexchange.TemporaryCredentials, error)
}

func (m *mockAPI) AccountRoles(ctx context.Context, token *credentialexchange.IdentityToken) ([]credentialexchange.Profile, error) {
	return m.accountRoles(ctx, token)
}

func (m *mockAPI) Exchange(ctx context.Context, accountID, roleName string, token *credentialexchange.IdentityToken) (*credentialexchange.TemporaryCredentials, error) {
	return m.exchange(ctx, accountID, roleName, token)
}

// fakeClock advances simulated time by the requested duration on every
// After call and fires immediately.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	onAfter func(d time.Duration)
	frozen  bool
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	if f.onAfter != nil {
		f.onAfter(d)
	}
	ch := make(chan time.Time, 1)
	if f.frozen {
		// never fires - the caller is expected to observe ctx.Done
		return ch
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	f.mu.Unlock()
	ch <- now
	return ch
}

func testProvider(t *testing.T, managedID string) *mockProvider {
	t.Helper()
	token, err := credentialexchange.ParseIdentityToken(unsignedJWT(t, map[string]any{
		credentialexchange.MANAGED_ID_CLAIM: managedID,
	}))
	if err != nil {
		t.Fatal(err)
	}
	return &mockProvider{identityToken: func(ctx context.Context) (*credentialexchange.IdentityToken, error) {
		return token, nil
	}}
}

func defaultAPI(t *testing.T) *mockAPI {
	t.Helper()
	return &mockAPI{
		accountRoles: func(ctx context.Context, token *credentialexchange.IdentityToken) ([]credentialexchange.Profile, error) {
			return []credentialexchange.Profile{
				{AccountName: "acc1", RoleName: "readonly", AccountID: "000111"},
			}, nil
		},
		exchange: func(ctx context.Context, accountID, roleName string, token *credentialexchange.IdentityToken) (*credentialexchange.TemporaryCredentials, error) {
			if accountID != "000111" {
				t.Errorf("got account id %s, wanted the resolved 000111", accountID)
			}
			return &credentialexchange.TemporaryCredentials{
				AccessKeyID:     "AKIA1",
				SecretAccessKey: "s3cr3t",
				SessionToken:    "tok1",
			}, nil
		},
	}
}

type svcFixture struct {
	svc       *cmdutils.LoginSvc
	clock     *fakeClock
	credsPath string
	tracker   credentialexchange.LastUpdateTracker
}

func newFixture(t *testing.T, api cmdutils.CredentialAPI, provider cmdutils.TokenProvider) *svcFixture {
	t.Helper()
	dir := t.TempDir()
	credsPath := path.Join(dir, "credentials")
	tracker := credentialexchange.LastUpdateTracker{Path: path.Join(dir, "last_update.yaml")}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	svc := cmdutils.New(api, provider,
		credentialexchange.FileWriter{Path: credsPath}, tracker).WithClock(clock)
	return &svcFixture{svc: svc, clock: clock, credsPath: credsPath, tracker: tracker}
}

func Test_Login_writes_credentials_and_record(t *testing.T) {
	f := newFixture(t, defaultAPI(t), testProvider(t, "U1"))

	err := f.svc.Login(context.TODO(), cmdutils.LoginParams{
		AccountName: "acc1", RoleName: "readonly", AwsProfile: "default",
	})
	if err != nil {
		t.Fatalf("got %s, wanted <nil>", err)
	}

	cfg, err := ini.Load(f.credsPath)
	if err != nil {
		t.Fatal(err)
	}
	section := cfg.Section("default")
	for key, want := range map[string]string{
		"aws_access_key_id":     "AKIA1",
		"aws_secret_access_key": "s3cr3t",
		"aws_session_token":     "tok1",
		"aws_security_token":    "tok1",
	} {
		if got := section.Key(key).String(); got != want {
			t.Errorf("%s: got %s, wanted %s", key, got, want)
		}
	}

	rec := f.tracker.Load()
	if rec.AccountName != "acc1" || rec.RoleName != "readonly" {
		t.Errorf("got %v, wanted acc1/readonly", rec)
	}
	if rec.Timestamp != f.clock.Now().Unix() {
		t.Errorf("got timestamp %d, wanted %d", rec.Timestamp, f.clock.Now().Unix())
	}
}

func Test_Login_falls_back_to_last_exchange(t *testing.T) {
	api := defaultAPI(t)
	exchanged := ""
	api.exchange = func(ctx context.Context, accountID, roleName string, token *credentialexchange.IdentityToken) (*credentialexchange.TemporaryCredentials, error) {
		exchanged = roleName
		return &credentialexchange.TemporaryCredentials{AccessKeyID: "AKIA1", SecretAccessKey: "s"}, nil
	}
	f := newFixture(t, api, testProvider(t, "U1"))
	if err := f.tracker.Save(credentialexchange.LastUpdate{Timestamp: 1, AccountName: "acc1", RoleName: "readonly"}); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Login(context.TODO(), cmdutils.LoginParams{AwsProfile: "default"}); err != nil {
		t.Fatalf("got %s, wanted <nil>", err)
	}
	if exchanged != "readonly" {
		t.Errorf("got %s, wanted the tracked role readonly", exchanged)
	}
}

func Test_Login_without_profile_or_history_fails_before_network(t *testing.T) {
	api := &mockAPI{
		accountRoles: func(ctx context.Context, token *credentialexchange.IdentityToken) ([]credentialexchange.Profile, error) {
			t.Error("resolver must not be called")
			return nil, nil
		},
		exchange: func(ctx context.Context, accountID, roleName string, token *credentialexchange.IdentityToken) (*credentialexchange.TemporaryCredentials, error) {
			t.Error("exchange must not be called")
			return nil, nil
		},
	}
	f := newFixture(t, api, testProvider(t, "U1"))

	err := f.svc.Login(context.TODO(), cmdutils.LoginParams{AwsProfile: "default"})
	if !errors.Is(err, cmdutils.ErrNoProfileConfigured) {
		t.Errorf("got %v, wanted %s", err, cmdutils.ErrNoProfileConfigured)
	}
}

func Test_Login_unknown_profile_leaves_no_partial_write(t *testing.T) {
	f := newFixture(t, defaultAPI(t), testProvider(t, "U1"))

	err := f.svc.Login(context.TODO(), cmdutils.LoginParams{
		AccountName: "acc1", RoleName: "missing", AwsProfile: "default",
	})
	if !errors.Is(err, credentialexchange.ErrProfileNotFound) {
		t.Fatalf("got %v, wanted %s", err, credentialexchange.ErrProfileNotFound)
	}
	if _, err := os.Stat(f.credsPath); !os.IsNotExist(err) {
		t.Error("credentials file written despite failed resolution")
	}
	if rec := f.tracker.Load(); rec.Timestamp != 0 {
		t.Error("tracker updated despite failed resolution")
	}
}

func Test_Refresh_loop_reexchanges_only_after_deadline(t *testing.T) {
	api := defaultAPI(t)
	exchangeTimes := []time.Time{}
	var f *svcFixture
	api.exchange = func(ctx context.Context, accountID, roleName string, token *credentialexchange.IdentityToken) (*credentialexchange.TemporaryCredentials, error) {
		exchangeTimes = append(exchangeTimes, f.clock.Now())
		if len(exchangeTimes) == 2 {
			// the loop has no retry policy - a post-wait failure ends it
			return nil, &credentialexchange.UpstreamError{StatusCode: 500, Body: "boom"}
		}
		return &credentialexchange.TemporaryCredentials{AccessKeyID: "AKIA1", SecretAccessKey: "s"}, nil
	}
	f = newFixture(t, api, testProvider(t, "U1"))

	err := f.svc.Login(context.Background(), cmdutils.LoginParams{
		AccountName: "acc1", RoleName: "readonly", AwsProfile: "default", Refresh: true,
	})
	if !errors.Is(err, credentialexchange.ErrUpstream) {
		t.Fatalf("got %v, wanted %s", err, credentialexchange.ErrUpstream)
	}

	if len(exchangeTimes) != 2 {
		t.Fatalf("got %d exchanges, wanted 2", len(exchangeTimes))
	}
	elapsed := exchangeTimes[1].Sub(exchangeTimes[0])
	if elapsed < cmdutils.RefreshMargin {
		t.Errorf("re-exchanged after %s, wanted at least %s", elapsed, cmdutils.RefreshMargin)
	}
	// the poll increment bounds how far past the deadline the retry can be
	if elapsed > cmdutils.RefreshMargin+3*time.Minute {
		t.Errorf("re-exchanged after %s, wanted close to %s", elapsed, cmdutils.RefreshMargin)
	}
}

func Test_Refresh_interrupt_leaves_files_untouched(t *testing.T) {
	f := newFixture(t, defaultAPI(t), testProvider(t, "U1"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var credsSnapshot, recordSnapshot []byte
	f.clock.frozen = true
	f.clock.onAfter = func(d time.Duration) {
		// simulate the interrupt arriving mid wait; snapshot what is on
		// disk at that moment
		var err error
		if credsSnapshot, err = os.ReadFile(f.credsPath); err != nil {
			t.Error(err)
		}
		if recordSnapshot, err = os.ReadFile(f.tracker.Path); err != nil {
			t.Error(err)
		}
		cancel()
	}

	err := f.svc.Login(ctx, cmdutils.LoginParams{
		AccountName: "acc1", RoleName: "readonly", AwsProfile: "default", Refresh: true,
	})
	if err != nil {
		t.Fatalf("got %s, wanted a clean exit", err)
	}

	credsAfter, err := os.ReadFile(f.credsPath)
	if err != nil {
		t.Fatal(err)
	}
	recordAfter, err := os.ReadFile(f.tracker.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(credsAfter) != string(credsSnapshot) {
		t.Error("credentials file changed across the interrupt")
	}
	if string(recordAfter) != string(recordSnapshot) {
		t.Error("last-update record changed across the interrupt")
	}
}

func Test_Require_with(t *testing.T) {
	ttests := map[string]struct {
		record        func(now time.Time) credentialexchange.LastUpdate
		params        cmdutils.LoginParams
		wantExchanges int
	}{
		"fresh and no hint is a no-op": {
			record: func(now time.Time) credentialexchange.LastUpdate {
				return credentialexchange.LastUpdate{Timestamp: now.Unix(), AccountName: "acc1", RoleName: "readonly"}
			},
			params:        cmdutils.LoginParams{AwsProfile: "default"},
			wantExchanges: 0,
		},
		"fresh and matching hint is a no-op": {
			record: func(now time.Time) credentialexchange.LastUpdate {
				return credentialexchange.LastUpdate{Timestamp: now.Unix(), AccountName: "acc1", RoleName: "readonly"}
			},
			params:        cmdutils.LoginParams{AccountName: "acc1", RoleName: "readonly", AwsProfile: "default"},
			wantExchanges: 0,
		},
		"stale triggers exactly one login": {
			record: func(now time.Time) credentialexchange.LastUpdate {
				return credentialexchange.LastUpdate{
					Timestamp:   now.Add(-cmdutils.RefreshMargin - time.Minute).Unix(),
					AccountName: "acc1", RoleName: "readonly",
				}
			},
			params:        cmdutils.LoginParams{AwsProfile: "default"},
			wantExchanges: 1,
		},
		"fresh but different account triggers a login": {
			record: func(now time.Time) credentialexchange.LastUpdate {
				return credentialexchange.LastUpdate{Timestamp: now.Unix(), AccountName: "acc2", RoleName: "readonly"}
			},
			params:        cmdutils.LoginParams{AccountName: "acc1", RoleName: "readonly", AwsProfile: "default"},
			wantExchanges: 1,
		},
		"fresh but different role triggers a login": {
			record: func(now time.Time) credentialexchange.LastUpdate {
				return credentialexchange.LastUpdate{Timestamp: now.Unix(), AccountName: "acc1", RoleName: "poweruser"}
			},
			params:        cmdutils.LoginParams{AccountName: "acc1", RoleName: "readonly", AwsProfile: "default"},
			wantExchanges: 1,
		},
	}
	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			api := defaultAPI(t)
			exchanges := 0
			api.exchange = func(ctx context.Context, accountID, roleName string, token *credentialexchange.IdentityToken) (*credentialexchange.TemporaryCredentials, error) {
				exchanges++
				return &credentialexchange.TemporaryCredentials{AccessKeyID: "AKIA1", SecretAccessKey: "s"}, nil
			}
			f := newFixture(t, api, testProvider(t, "U1"))
			if err := f.tracker.Save(tt.record(f.clock.Now())); err != nil {
				t.Fatal(err)
			}

			if err := f.svc.Require(context.TODO(), tt.params); err != nil {
				t.Fatalf("got %s, wanted <nil>", err)
			}
			if exchanges != tt.wantExchanges {
				t.Errorf("got %d exchanges, wanted %d", exchanges, tt.wantExchanges)
			}
		})
	}
}

func Test_Login_propagates_provider_failure(t *testing.T) {
	provider := &mockProvider{identityToken: func(ctx context.Context) (*credentialexchange.IdentityToken, error) {
		return nil, fmt.Errorf("user closed browser: %w", credentialexchange.ErrAuthenticationFailed)
	}}
	f := newFixture(t, defaultAPI(t), provider)

	err := f.svc.Login(context.TODO(), cmdutils.LoginParams{
		AccountName: "acc1", RoleName: "readonly", AwsProfile: "default",
	})
	if !errors.Is(err, credentialexchange.ErrAuthenticationFailed) {
		t.Errorf("got %v, wanted %s", err, credentialexchange.ErrAuthenticationFailed)
	}
}
