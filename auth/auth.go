// Package auth provides git and GitHub API credentials for the sync run.
//
// The API token is always supplied explicitly (flag or environment). For the
// git https transport the same token is used by default, a configured GitHub
// App installation can replace it with a short-lived installation token so
// clone access can be granted to an app instead of a personal token.
package auth

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const defaultAPIBase = "https://api.github.com"

const loadCredsScript = `#!/bin/sh

case "$1" in
  Username*) echo "$GH_SYNC_USERNAME" ;;
  Password*) echo "$GH_SYNC_PASSWORD" ;;
esac
`

// Config is the optional git credential configuration.
type Config struct {
	// SSHKeyPath and SSHKnownHostsPath configure the ssh transport when
	// catalog urls are rewritten to ssh. With no key path ssh falls back to
	// ambient identities (agent or default keys).
	SSHKeyPath        string `yaml:"ssh_key_path"`
	SSHKnownHostsPath string `yaml:"ssh_known_hosts_path"`

	// GithubApp* mint an installation token used as the git https password
	// in place of the API token.
	GithubAppID             string `yaml:"github_app_id"`
	GithubAppInstallationID string `yaml:"github_app_installation_id"`
	GithubAppPrivateKeyPath string `yaml:"github_app_private_key_path"`
}

// HasGithubApp reports whether a GitHub App credential is configured.
func (c Config) HasGithubApp() bool {
	return c.GithubAppID != "" &&
		c.GithubAppInstallationID != "" &&
		c.GithubAppPrivateKeyPath != ""
}

// Validate collects all config errors.
func (c Config) Validate() error {
	var errs []error

	if c.GithubAppID != "" || c.GithubAppInstallationID != "" || c.GithubAppPrivateKeyPath != "" {
		if !c.HasGithubApp() {
			errs = append(errs, fmt.Errorf("github app auth requires github_app_id, github_app_installation_id and github_app_private_key_path"))
		}
	}
	if c.GithubAppPrivateKeyPath != "" && !filepath.IsAbs(c.GithubAppPrivateKeyPath) {
		errs = append(errs, fmt.Errorf("github_app_private_key_path must be absolute"))
	}

	if len(errs) != 0 {
		return fmt.Errorf("%s", errs)
	}
	return nil
}

type GithubAppTokenReqPermissions struct {
	Repositories []string          `json:"repositories,omitempty"`
	Permissions  map[string]string `json:"permissions,omitempty"`
}

type GithubAppToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GithubAppInstallationToken creates an installation access token for the
// given app installation. The request is authenticated with a short-lived
// RS256 JWT signed by the app's private key. apiBase defaults to the public
// GitHub REST API.
func GithubAppInstallationToken(ctx context.Context,
	apiBase, appID, installationID, privateKeyPath string, reqPerms GithubAppTokenReqPermissions,
) (*GithubAppToken, error) {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	privatePEMData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(privatePEMData)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: privateKey}, nil)
	if err != nil {
		return nil, err
	}

	cl := jwt.Claims{
		// GitHub App's ID or client ID
		Issuer: appID,
		// issued at time, 60 seconds in the past to allow for clock drift
		IssuedAt: jwt.NewNumericDate(time.Now().Add(-60 * time.Second)),
		// JWT expiration time (10 minute maximum)
		Expiry: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
	}

	jwtToken, err := jwt.Signed(signer).Claims(cl).Serialize()
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(reqPerms)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", apiBase, installationID)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		errMessage, err := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub app token response status %d, body:%q  err:%w", resp.StatusCode, errMessage, err)
	}

	var tokenResponse GithubAppToken
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return nil, err
	}

	return &tokenResponse, nil
}

// GitPassword returns the password to present over the git https transport.
// A configured GitHub App wins, the token is minted with read access to the
// contents of every repository the installation covers. Otherwise the API
// token is reused.
func GitPassword(ctx context.Context, apiBase, apiToken string, conf Config, log *slog.Logger) (string, error) {
	if !conf.HasGithubApp() {
		return apiToken, nil
	}

	permissions := GithubAppTokenReqPermissions{
		Permissions: map[string]string{"contents": "read", "metadata": "read"},
	}

	token, err := GithubAppInstallationToken(ctx,
		apiBase, conf.GithubAppID, conf.GithubAppInstallationID, conf.GithubAppPrivateKeyPath,
		permissions)
	if err != nil {
		return "", fmt.Errorf("unable to get github app token err:%w", err)
	}

	log.Debug("new github app access token created", "expires_at", token.ExpiresAt)

	return token.Token, nil
}

// EnsureCredsLoader writes the askpass helper script under dir and returns
// its path. The script answers git's credential prompts from the
// GH_SYNC_USERNAME / GH_SYNC_PASSWORD environment variables.
func EnsureCredsLoader(dir string) (string, error) {
	credsLoader := filepath.Join(dir, "gh-sync-creds-loader.sh")

	_, err := os.Stat(credsLoader)
	switch {
	case os.IsNotExist(err):
		if err := os.WriteFile(credsLoader, []byte(loadCredsScript), 0750); err != nil {
			return "", err
		}
	case err != nil:
		return "", fmt.Errorf("unable to check if script file exists err:%w", err)
	}

	return credsLoader, nil
}

// HTTPSEnv returns the environment variables wiring git's credential prompts
// to the given password via the askpass loader script.
func HTTPSEnv(credsLoader, password string) []string {
	return []string{
		fmt.Sprintf(`GIT_ASKPASS=%s`, credsLoader),
		// username is required but not meaningful for token auth
		`GH_SYNC_USERNAME=-`,
		fmt.Sprintf(`GH_SYNC_PASSWORD=%s`, password),
	}
}

// GitSSHCommand returns the environment variable to be used for configuring
// git over ssh. BatchMode keeps ssh from ever prompting.
func GitSSHCommand(conf Config) string {
	sshCommand := "ssh -q -F none -o BatchMode=yes"
	if conf.SSHKeyPath != "" {
		sshCommand += fmt.Sprintf(" -o IdentitiesOnly=yes -o IdentityFile=%s", conf.SSHKeyPath)
	}
	if conf.SSHKnownHostsPath != "" {
		sshCommand += fmt.Sprintf(" -o UserKnownHostsFile=%s", conf.SSHKnownHostsPath)
	} else {
		sshCommand += " -o UserKnownHostsFile=/dev/null -o StrictHostKeyChecking=no"
	}
	return "GIT_SSH_COMMAND=" + sshCommand
}
