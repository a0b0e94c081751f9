package credentialexchange

import (
	"errors"
	"fmt"
	"os"
	"path"

	yaml "gopkg.in/yaml.v3"
)

const (
	SELF_NAME            = "zaws"
	ROLES_RESOURCE       = "/aws-account-roles/%s"
	CREDENTIALS_RESOURCE = "/aws-accounts/%s/roles/%s/credentials"
	MANAGED_ID_CLAIM     = "https://identity.zalando.com/managed-id"
	ACCESS_TOKEN_VAR     = "ZAWS_ACCESS_TOKEN"
	LAST_UPDATE_FILE     = "last_update.yaml"
)

var (
	ErrConfigFailure = errors.New("config error")
)

// Config is the user editable configuration document.
//
// ServiceURL is required for every remote operation, the rest are optional.
// AuthorizeURL and RedirectURI drive the browser based token flow and are
// only needed when no cached or env supplied token exists.
type Config struct {
	ServiceURL     string `yaml:"service_url"`
	DefaultAccount string `yaml:"default_account,omitempty"`
	DefaultRole    string `yaml:"default_role,omitempty"`
	AuthorizeURL   string `yaml:"authorize_url,omitempty"`
	RedirectURI    string `yaml:"redirect_uri,omitempty"`
}

// Settings carries the per invocation paths and profile name.
//
// It is built once in the cmd layer and passed by reference everywhere,
// there is no ambient state.
type Settings struct {
	ConfigFile     string
	ConfigDir      string
	LastUpdateFile string
	AwsProfile     string
}

func NewSettings(configFile, awsProfile string) Settings {
	dir := path.Dir(configFile)
	return Settings{
		ConfigFile:     configFile,
		ConfigDir:      dir,
		LastUpdateFile: path.Join(dir, LAST_UPDATE_FILE),
		AwsProfile:     awsProfile,
	}
}

// DefaultConfigFile returns ~/.config/zaws/zaws.yaml
func DefaultConfigFile() string {
	return path.Join(HomeDir(), ".config", SELF_NAME, fmt.Sprintf("%s.yaml", SELF_NAME))
}

// LoadConfig reads the config document.
// A missing file yields an empty config, a malformed one is an error.
func LoadConfig(configFile string) (*Config, error) {
	conf := &Config{}
	b, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return conf, nil
		}
		return nil, fmt.Errorf("%s, %w", err, ErrConfigFailure)
	}
	if err := yaml.Unmarshal(b, conf); err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrConfigFailure)
	}
	return conf, nil
}

// SaveConfig overwrites the config document, creating parent dirs as needed.
func SaveConfig(configFile string, conf *Config) error {
	if err := os.MkdirAll(path.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("%s, %w", err, ErrConfigFailure)
	}
	b, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("%s, %w", err, ErrConfigFailure)
	}
	return os.WriteFile(configFile, b, 0600)
}
