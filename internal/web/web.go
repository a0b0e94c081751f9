package web

import (
	"context"
	"errors"
	"fmt"
	nurl "net/url"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/utils"
)

var (
	ErrTimedOut       = errors.New("timed out waiting for input or user closed zaws browser instance")
	ErrNoTokenCapture = errors.New("redirect did not carry an access_token")
)

// WebConfig
type WebConfig struct {
	// CustomChromeExecutable can point to a chromium like browser executable
	// e.g. chrome, chromium, brave, edge, (any other chromium based browser)
	CustomChromeExecutable string
	datadir                string
	// timeout value in seconds
	timeout   int32
	headless  bool
	leakless  bool
	noSandbox bool
}

func NewWebConf(datadir string) *WebConfig {
	return &WebConfig{
		datadir:  datadir,
		headless: false,
		timeout:  120,
	}
}

func (wc *WebConfig) WithTimeout(timeoutSeconds int32) *WebConfig {
	wc.timeout = timeoutSeconds
	return wc
}

func (wc *WebConfig) WithHeadless() *WebConfig {
	wc.headless = true
	return wc
}

func (wc *WebConfig) WithNoSandbox() *WebConfig {
	wc.noSandbox = true
	return wc
}

func (wc *WebConfig) WithCustomExecutable(browserPath string) *WebConfig {
	wc.CustomChromeExecutable = browserPath
	return wc
}

type Web struct {
	conf     *WebConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	ctx      context.Context
}

// New returns an initialised instance of Web struct
func New(ctx context.Context, conf *WebConfig) (*Web, error) {
	l := BuildLauncher(ctx, conf)

	url, err := l.Launch()
	if err != nil {
		return nil, err
	}
	browser := rod.New().
		ControlURL(url).
		MustConnect().NoDefaultDevice()

	web := &Web{
		conf:     conf,
		launcher: l,
		browser:  browser,
		ctx:      ctx,
	}

	return web, nil
}

func BuildLauncher(ctx context.Context, conf *WebConfig) *launcher.Launcher {
	l := launcher.New()
	// common set up
	l.Devtools(false).
		UserDataDir(conf.datadir).
		Headless(conf.headless).
		NoSandbox(conf.noSandbox).
		Leakless(conf.leakless)

	if conf.CustomChromeExecutable != "" {
		fmt.Fprintf(os.Stderr, "browser: %s\n", conf.CustomChromeExecutable)
		return l.Bin(conf.CustomChromeExecutable)
	}
	// try default locations if custom location is not specified and default location exists
	if defaultExecPath, found := launcher.LookPath(); conf.CustomChromeExecutable == "" && defaultExecPath != "" && found {
		fmt.Fprintf(os.Stderr, "browser: %s\n", defaultExecPath)
		return l.Bin(defaultExecPath)
	}
	return l
}

func (web *Web) WithConfig(conf *WebConfig) *Web {
	web.conf = conf
	return web
}

// AuthFlowConfig is the pair of endpoints for the implicit grant flow.
type AuthFlowConfig struct {
	AuthorizeURL string
	RedirectURI  string
}

// FetchToken drives the IdP's authorize page and captures the access token
// from the implicit flow redirect.
//
// The token travels in the URI fragment, which never reaches the network
// layer, so instead of hijacking requests the page location is polled until
// it lands on the redirect URI.
//
// Timesout after a specified timeout - default 120s
func (web *Web) FetchToken(conf AuthFlowConfig) (string, error) {

	// close browser even on error
	// should cover most cases even with leakless: false
	defer web.MustClose()

	page := web.browser.MustPage(conf.AuthorizeURL)

	go func() {
		<-web.ctx.Done()
		web.MustClose()
	}()

	deadline := time.After(time.Duration(web.conf.timeout) * time.Second)

	for {
		select {
		case <-time.After(500 * time.Millisecond):
			info, err := page.Info()
			if err != nil {
				continue
			}
			if strings.HasPrefix(info.URL, conf.RedirectURI) {
				return TokenFromRedirect(info.URL)
			}
		case <-deadline:
			return "", fmt.Errorf("%w", ErrTimedOut)
		// listen for closing of browser
		// gracefully clean up
		case browserEvent := <-web.browser.Event():
			if browserEvent != nil && browserEvent.Method == "Inspector.detached" {
				return "", fmt.Errorf("%w", ErrTimedOut)
			}
		}
	}
}

// TokenFromRedirect extracts the access_token from a redirect URL,
// checking the fragment first and falling back to the query string.
func TokenFromRedirect(rawURL string) (string, error) {
	parsed, err := nurl.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%s, %w", err, ErrNoTokenCapture)
	}
	for _, raw := range []string{parsed.Fragment, parsed.RawQuery} {
		if raw == "" {
			continue
		}
		vals, err := nurl.ParseQuery(raw)
		if err != nil {
			continue
		}
		if token := vals.Get("access_token"); token != "" {
			return token, nil
		}
	}
	return "", fmt.Errorf("%s: %w", rawURL, ErrNoTokenCapture)
}

func (web *Web) MustClose() {
	web.launcher.Kill()
	web.launcher.Cleanup()
	// swallows errors here - until a structured logger
	_ = web.browser.Close()
	utils.Sleep(0.5)
	// remove process just in case
	// os.Process is cross platform safe way to remove a process
	if osprocess, err := os.FindProcess(web.launcher.PID()); err == nil && osprocess != nil {
		_ = osprocess.Kill()
	}
}
