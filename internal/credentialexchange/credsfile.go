package credentialexchange

import (
	"fmt"
	"os"
	"path"

	ini "gopkg.in/ini.v1"
)

// FileWriter persists a named profile into the AWS shared credentials file.
type FileWriter struct {
	Path string
}

func NewFileWriter(credsPath string) FileWriter {
	if credsPath == "" {
		credsPath = DefaultCredentialsFile()
	}
	return FileWriter{Path: credsPath}
}

// Write rewrites the credentials file with the given profile section
// added or replaced, preserving all unrelated sections.
//
// When a session token is present it is stored under both key variants
// since the various AWS SDKs disagree on the name. The rewrite is an
// overwrite in place, not an atomic swap.
func (w FileWriter) Write(profileName string, creds *TemporaryCredentials) error {
	if err := os.MkdirAll(path.Dir(w.Path), 0755); err != nil {
		return fmt.Errorf("cannot create credentials dir: %s, %w", err, ErrConfigFailure)
	}
	cfg, err := ini.LooseLoad(w.Path)
	if err != nil {
		return fmt.Errorf("fail to read credentials file: %s, %w", err, ErrConfigFailure)
	}
	section := cfg.Section(profileName)
	section.Key("aws_access_key_id").SetValue(creds.AccessKeyID)
	section.Key("aws_secret_access_key").SetValue(creds.SecretAccessKey)
	if creds.SessionToken != "" {
		section.Key("aws_session_token").SetValue(creds.SessionToken)
		section.Key("aws_security_token").SetValue(creds.SessionToken)
	} else {
		section.DeleteKey("aws_session_token")
		section.DeleteKey("aws_security_token")
	}
	return cfg.SaveTo(w.Path)
}
