package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"path"
	"strings"

	"dario.cat/mergo"
	"github.com/DevLabFoundry/zaws/internal/cmdutils"
	"github.com/DevLabFoundry/zaws/internal/credentialexchange"
	"github.com/DevLabFoundry/zaws/internal/web"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	Version  string = "0.0.1"
	Revision string = "1111aaaa"
)

type Root struct {
	Cmd       *cobra.Command
	rootFlags *rootCmdFlags
	Datadir   string
}

type rootCmdFlags struct {
	configFile string
	awsProfile string
	verbose    bool
}

func New() *Root {
	rf := &rootCmdFlags{}
	r := &Root{rootFlags: rf}
	r.Cmd = &cobra.Command{
		Use:   "zaws",
		Short: "CLI tool for retrieving temporary AWS credentials",
		Long: `CLI tool for retrieving temporary AWS credentials from a credential service.
Exchanges your identity bearer token for account/role scoped credentials and
stores them under the $HOME/.aws/credentials file under a specified profile name.
Running without a subcommand logs in with the configured default account and role.`,
		Version:       fmt.Sprintf("%s-%s", Version, Revision),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if rf.verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, settings, err := r.EnsureConfig(cmd)
			if err != nil {
				return err
			}
			params := cmdutils.LoginParams{AwsProfile: settings.AwsProfile}
			if err := MergeDefaults(&params, conf); err != nil {
				return err
			}
			if params.AccountName == "" {
				return fmt.Errorf(`use "zaws set-default ACCOUNT ROLE" to set a default profile: %w`, cmdutils.ErrNoProfileConfigured)
			}
			svc, err := r.LoginSvc(cmd.Context(), conf, settings)
			if err != nil {
				return err
			}
			return svc.Login(cmd.Context(), params)
		},
	}

	r.Cmd.PersistentFlags().StringVarP(&rf.configFile, "config-file", "c", credentialexchange.DefaultConfigFile(), "Use alternative configuration file")
	r.Cmd.PersistentFlags().StringVarP(&rf.awsProfile, "awsprofile", "", "default", "Profile name in ~/.aws/credentials")
	r.Cmd.PersistentFlags().BoolVarP(&rf.verbose, "verbose", "v", false, "Verbose output")
	_ = r.dataDirInit()
	return r
}

// SubCommands is a standalone Builder helper
//
// IF you are making your sub commands public, you can just pass them directly `WithSubCommands`
func SubCommands() []func(*Root) {
	return []func(*Root){
		newLoginCmd,
		newListCmd,
		newSetDefaultCmd,
		newRequireCmd,
		newWhoamiCmd,
		newClearCmd,
	}
}

func (r *Root) WithSubCommands(iocFuncs ...func(rootCmd *Root)) {
	for _, fn := range iocFuncs {
		fn(r)
	}
}

func (r *Root) Execute(ctx context.Context) error {
	return r.Cmd.ExecuteContext(ctx)
}

func (r *Root) dataDirInit() error {
	datadir := path.Join(credentialexchange.HomeDir(), fmt.Sprintf(".%s-data", credentialexchange.SELF_NAME))
	r.Datadir = datadir
	if _, err := os.Stat(datadir); err != nil {
		return os.MkdirAll(datadir, 0755)
	}
	return nil
}

// Settings builds the per invocation paths from the root flags.
func (r *Root) Settings() credentialexchange.Settings {
	return credentialexchange.NewSettings(r.rootFlags.configFile, r.rootFlags.awsProfile)
}

// EnsureConfig loads the configuration and, on first use, prompts for the
// credentials service URL until a reachable one is supplied. The prompt
// loop lives here, outside the credential state machine.
func (r *Root) EnsureConfig(cmd *cobra.Command) (*credentialexchange.Config, credentialexchange.Settings, error) {
	settings := r.Settings()
	conf, err := credentialexchange.LoadConfig(settings.ConfigFile)
	if err != nil {
		return nil, settings, err
	}
	if conf.ServiceURL == "" {
		serviceURL, err := promptServiceURL(cmd)
		if err != nil {
			return nil, settings, err
		}
		conf.ServiceURL = serviceURL
		log.Infof("Storing new credentials service URL in %s", settings.ConfigFile)
		if err := credentialexchange.SaveConfig(settings.ConfigFile, conf); err != nil {
			return nil, settings, err
		}
	}
	return conf, settings, nil
}

func promptServiceURL(cmd *cobra.Command) (string, error) {
	reader := bufio.NewReader(cmd.InOrStdin())
	checker := &http.Client{Timeout: credentialexchange.DefaultRequestTimeout}
	for {
		fmt.Fprint(cmd.OutOrStdout(), "Enter credentials service URL: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("no service URL supplied: %w", err)
		}
		serviceURL := strings.TrimSpace(line)
		if serviceURL == "" {
			continue
		}
		if !strings.HasPrefix(serviceURL, "http") {
			serviceURL = fmt.Sprintf("https://%s", serviceURL)
		}
		resp, err := checker.Get(serviceURL + "/swagger.json")
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "ERROR: connection error or timed out")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintln(cmd.ErrOrStderr(), "ERROR: no response from credentials service")
			continue
		}
		return serviceURL, nil
	}
}

// MergeDefaults fills any unset account/role in params from the configured
// defaults - values already present win.
func MergeDefaults(params *cmdutils.LoginParams, conf *credentialexchange.Config) error {
	return mergo.Merge(params, cmdutils.LoginParams{
		AccountName: conf.DefaultAccount,
		RoleName:    conf.DefaultRole,
	})
}

// LoginSvc wires the orchestrator against the real service client, file
// writer, tracker and the caching browser token provider.
func (r *Root) LoginSvc(ctx context.Context, conf *credentialexchange.Config, settings credentialexchange.Settings) (*cmdutils.LoginSvc, error) {
	provider, err := r.tokenProvider(ctx, conf)
	if err != nil {
		return nil, err
	}
	return cmdutils.New(
		credentialexchange.NewClient(conf.ServiceURL),
		provider,
		credentialexchange.NewFileWriter(""),
		credentialexchange.LastUpdateTracker{Path: settings.LastUpdateFile},
	), nil
}

func (r *Root) tokenProvider(ctx context.Context, conf *credentialexchange.Config) (cmdutils.TokenProvider, error) {
	usr, err := user.Current()
	if err != nil {
		return nil, err
	}
	store, err := credentialexchange.NewTokenStore(os.TempDir(), usr.Username)
	if err != nil {
		return nil, err
	}
	fetcher := cmdutils.TokenFetcherFunc(func(fctx context.Context) (string, error) {
		browser, err := web.New(fctx, web.NewWebConf(r.Datadir))
		if err != nil {
			return "", err
		}
		return browser.FetchToken(web.AuthFlowConfig{
			AuthorizeURL: conf.AuthorizeURL,
			RedirectURI:  conf.RedirectURI,
		})
	})
	return cmdutils.NewCachingTokenProvider(store, fetcher), nil
}
