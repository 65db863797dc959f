// Package auth mints short-lived credentials wit can hand to the git
// executable: a GitHub App installation token over HTTPS, or a
// GIT_SSH_COMMAND/GIT_ASKPASS environment for everything else.
package auth

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Config carries the credential material a Dependency's source may
// need. Zero value means "no auth, use whatever git/ssh-agent already
// has configured".
type Config struct {
	Username string
	Password string

	SSHKeyPath        string
	SSHKnownHostsPath string

	GithubAppID             string
	GithubAppInstallationID string
	GithubAppPrivateKeyPath string
}

// GithubAppTokenReqPermissions is the body of a GitHub App installation
// access token request, scoped to a single repository with read-only
// contents access.
type GithubAppTokenReqPermissions struct {
	Repositories []string          `json:"repositories"`
	Permissions  map[string]string `json:"permissions"`
}

// GithubAppToken is a short-lived installation access token.
type GithubAppToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GithubAppInstallationToken exchanges a GitHub App's private key for an
// installation access token scoped to reading the given repository.
func GithubAppInstallationToken(ctx context.Context,
	appID, installationID, privateKeyPath string, reqPerms GithubAppTokenReqPermissions,
) (*GithubAppToken, error) {
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

	url := fmt.Sprintf("https://api.github.com/app/installations/%s/access_tokens", installationID)

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
		errMessage, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github app token response status %d, body:%q", resp.StatusCode, errMessage)
	}

	var tokenResponse GithubAppToken
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return nil, err
	}

	return &tokenResponse, nil
}

const askpassScript = `#!/bin/sh

case "$1" in
  Username*) echo "$WIT_AUTH_USERNAME" ;;
  Password*) echo "$WIT_AUTH_PASSWORD" ;;
esac
`

// EnsureAskpassScript writes (once) the GIT_ASKPASS helper script used to
// feed basic-auth or token credentials to git without putting them on
// the command line, and returns its path.
func EnsureAskpassScript(dir string) (string, error) {
	path := dir + "/wit-creds-askpass.sh"

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("unable to check if askpass script exists: %w", err)
	}

	if err := os.WriteFile(path, []byte(askpassScript), 0o750); err != nil {
		return "", err
	}
	return path, nil
}

// Env builds the environment variables that configure git's
// credential/transport behaviour for source, given dir as the
// directory the askpass helper script (if needed) is written
// alongside. A zero-value Config, or a source git has no special
// handling for, yields a nil env and git falls back to whatever
// ssh-agent/credential-helper is already configured on the host.
func Env(ctx context.Context, cfg Config, dir, source string) []string {
	if isSCPOrSSH(source) {
		if cfg.SSHKeyPath == "" {
			return nil
		}
		return []string{SSHCommand(cfg)}
	}
	if !isHTTPS(source) {
		return nil
	}

	var username, password string
	switch {
	case cfg.Username != "" && cfg.Password != "":
		username, password = cfg.Username, cfg.Password
	case cfg.Password != "":
		username, password = "-", cfg.Password
	case cfg.GithubAppInstallationID != "" && githubAppHost(source):
		repo := githubAppRepoName(source)
		token, err := GithubAppInstallationToken(ctx, cfg.GithubAppID, cfg.GithubAppInstallationID, cfg.GithubAppPrivateKeyPath,
			GithubAppTokenReqPermissions{Repositories: []string{repo}, Permissions: map[string]string{"contents": "read"}})
		if err != nil {
			return nil
		}
		username, password = "-", token.Token
	default:
		return nil
	}

	script, err := EnsureAskpassScript(dir)
	if err != nil {
		return nil
	}
	return []string{
		"GIT_ASKPASS=" + script,
		"WIT_AUTH_USERNAME=" + username,
		"WIT_AUTH_PASSWORD=" + password,
	}
}

func isSCPOrSSH(source string) bool {
	return strings.HasPrefix(source, "ssh://") ||
		(strings.Contains(source, "@") && strings.Contains(source, ":") && !strings.Contains(source, "://"))
}

func isHTTPS(source string) bool {
	return strings.HasPrefix(source, "https://")
}

func githubAppHost(source string) bool {
	return strings.Contains(source, "github.com")
}

func githubAppRepoName(source string) string {
	trimmed := strings.TrimSuffix(source, ".git")
	idx := strings.LastIndex(trimmed, "/")
	if idx == -1 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// SSHCommand returns the GIT_SSH_COMMAND environment variable that
// forces git to use the configured key and known_hosts file (or
// disables host-key checking entirely if none is configured).
func SSHCommand(cfg Config) string {
	sshKeyPath := cfg.SSHKeyPath
	if sshKeyPath == "" {
		sshKeyPath = "/dev/null"
	}
	knownHostsOptions := "-o UserKnownHostsFile=/dev/null -o StrictHostKeyChecking=no"
	if cfg.SSHKeyPath != "" && cfg.SSHKnownHostsPath != "" {
		knownHostsOptions = fmt.Sprintf("-o UserKnownHostsFile=%s", cfg.SSHKnownHostsPath)
	}
	return fmt.Sprintf(`GIT_SSH_COMMAND=ssh -q -F none -o IdentitiesOnly=yes -o IdentityFile=%s %s`, sshKeyPath, knownHostsOptions)
}
