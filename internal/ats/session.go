package ats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/ternarybob/vettra/internal/models"
)

// session holds the authenticated REST token and base URL. The token expires
// server-side; callers refresh via ensureSession after a 401.
type session struct {
	restToken string
	restURL   string
}

// login runs the full OAuth password-grant flow and exchanges the access
// token for a REST session.
func (c *Client) login(ctx context.Context) (*session, error) {
	conf := &oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.config.AuthURL + "/authorize",
			TokenURL: c.config.AuthURL + "/token",
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := conf.PasswordCredentialsToken(ctx, c.config.Username, c.config.Password)
	if err != nil {
		return nil, &models.AuthError{Op: "ats.login", Err: err}
	}

	loginURL := fmt.Sprintf("%s?version=%s&access_token=%s",
		c.config.LoginURL, url.QueryEscape("*"), url.QueryEscape(token.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.Transient("ats.login", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &models.AuthError{
			Op:  "ats.login",
			Err: fmt.Errorf("rest login returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var loginResp restLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return nil, &models.DataError{Op: "ats.login", Err: err}
	}
	if loginResp.RestToken == "" || loginResp.RestURL == "" {
		return nil, &models.DataError{Op: "ats.login", Err: fmt.Errorf("login response missing token or rest URL")}
	}

	c.logger.Info().Str("rest_url", loginResp.RestURL).Msg("ATS session established")

	return &session{
		restToken: loginResp.RestToken,
		restURL:   loginResp.RestURL,
	}, nil
}

// ensureSession returns the current session, logging in if none exists
func (c *Client) ensureSession(ctx context.Context) (*session, error) {
	c.sessionMu.RLock()
	sess := c.session
	c.sessionMu.RUnlock()
	if sess != nil {
		return sess, nil
	}
	return c.refreshSession(ctx, nil)
}

// refreshSession replaces the session, skipping the login when another
// goroutine already replaced the stale one.
func (c *Client) refreshSession(ctx context.Context, stale *session) (*session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if c.session != nil && c.session != stale {
		return c.session, nil
	}

	sess, err := c.login(ctx)
	if err != nil {
		return nil, err
	}
	c.session = sess
	return sess, nil
}
