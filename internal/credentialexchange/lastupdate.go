package credentialexchange

import (
	"fmt"
	"os"
	"path"

	yaml "gopkg.in/yaml.v3"
)

// LastUpdate records the most recent successful exchange.
// It is the sole signal for refresh timing.
type LastUpdate struct {
	Timestamp   int64  `yaml:"timestamp"`
	AccountName string `yaml:"account_name"`
	RoleName    string `yaml:"role_name"`
}

// LastUpdateTracker persists the LastUpdate record next to the config file.
type LastUpdateTracker struct {
	Path string
}

// Load returns the stored record. A missing or unreadable store yields the
// zero record - never treated as recent and never an error.
func (t LastUpdateTracker) Load() LastUpdate {
	rec := LastUpdate{}
	b, err := os.ReadFile(t.Path)
	if err != nil {
		return LastUpdate{}
	}
	if err := yaml.Unmarshal(b, &rec); err != nil {
		return LastUpdate{}
	}
	return rec
}

// Save overwrites the backing store entirely.
func (t LastUpdateTracker) Save(rec LastUpdate) error {
	if err := os.MkdirAll(path.Dir(t.Path), 0755); err != nil {
		return fmt.Errorf("cannot create config dir: %s, %w", err, ErrConfigFailure)
	}
	b, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s, %w", err, ErrConfigFailure)
	}
	return os.WriteFile(t.Path, b, 0600)
}
