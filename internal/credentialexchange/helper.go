package credentialexchange

import (
	"os"
	"path"

	log "github.com/sirupsen/logrus"
)

func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatal("unable to get the user home dir")
	}
	return home
}

// DefaultCredentialsFile resolves the AWS shared credentials file location,
// honouring the standard AWS_SHARED_CREDENTIALS_FILE override.
func DefaultCredentialsFile() string {
	if overriddenpath, exists := os.LookupEnv("AWS_SHARED_CREDENTIALS_FILE"); exists {
		return overriddenpath
	}
	return path.Join(HomeDir(), ".aws", "credentials")
}
