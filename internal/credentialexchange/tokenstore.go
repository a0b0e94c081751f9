package credentialexchange

import (
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/werf/lockgate"
	"github.com/werf/lockgate/pkg/file_locker"
	"github.com/zalando/go-keyring"
)

var (
	ErrCannotLockDir       = errors.New("unable to create lock dir")
	ErrUnableToAcquireLock = errors.New("cannot acquire lock")
	ErrTokenStoreFailure   = errors.New("token store failure")
)

// TokenStore caches the bearer token in the OS secret store so repeated
// invocations do not force the interactive flow. Access is serialized with
// a file lock since concurrent zaws processes share the same keyring entry.
type TokenStore struct {
	keyring       keyringApi
	locker        lockgate.Locker
	lockResource  string
	secretService string
	secretUser    string
}

type keyringApi interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

type keyRingImpl struct{}

func (k *keyRingImpl) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}
func (k *keyRingImpl) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}
func (k *keyRingImpl) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

func NewTokenStore(baseDir, username string) (*TokenStore, error) {
	lockDir := path.Join(baseDir, fmt.Sprintf("%s-lock", SELF_NAME))
	locker, err := file_locker.NewFileLocker(lockDir)
	if err != nil {
		return nil, fmt.Errorf("cannot setup lock dir %s: %w", lockDir, ErrCannotLockDir)
	}
	return &TokenStore{
		keyring:       &keyRingImpl{},
		locker:        locker,
		lockResource:  fmt.Sprintf("%s-token", SELF_NAME),
		secretService: fmt.Sprintf("%s-token", SELF_NAME),
		secretUser:    username,
	}, nil
}

func (s *TokenStore) WithLocker(locker lockgate.Locker) *TokenStore {
	s.locker = locker
	return s
}

func (s *TokenStore) WithKeyring(keyring keyringApi) *TokenStore {
	s.keyring = keyring
	return s
}

func (s *TokenStore) ensureLock() (func(), error) {
	acquired, lock, err := s.locker.Acquire(s.lockResource, lockgate.AcquireOptions{Shared: false, Timeout: 1 * time.Minute})
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrUnableToAcquireLock)
	}
	if !acquired {
		return nil, ErrUnableToAcquireLock
	}
	return func() {
		_ = s.locker.Release(lock)
	}, nil
}

// Token returns the cached bearer token, or empty when none is stored.
func (s *TokenStore) Token() (string, error) {
	release, err := s.ensureLock()
	if err != nil {
		return "", err
	}
	defer release()

	token, err := s.keyring.Get(s.secretService, s.secretUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%s, %w", err, ErrTokenStoreFailure)
	}
	return token, nil
}

func (s *TokenStore) SaveToken(token string) error {
	release, err := s.ensureLock()
	if err != nil {
		return err
	}
	defer release()

	if err := s.keyring.Set(s.secretService, s.secretUser, token); err != nil {
		return fmt.Errorf("%s, %w", err, ErrTokenStoreFailure)
	}
	return nil
}

// Clear removes the cached token, a missing entry is not an error.
func (s *TokenStore) Clear() error {
	release, err := s.ensureLock()
	if err != nil {
		return err
	}
	defer release()

	if err := s.keyring.Delete(s.secretService, s.secretUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%s, %w", err, ErrTokenStoreFailure)
	}
	return nil
}
