// Package api is the client for the intercom backend: call status fetches,
// provider credential fetches, and the fire-and-forget notification POSTs
// that keep panels and sibling devices informed.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/runslikebutter/doorphone/internal/call"
)

// TokenSource supplies the bearer token for backend requests. The OAuth flow
// that produces tokens lives outside this SDK; hosts plug in whatever token
// plumbing they already have.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token, mainly for tests and tooling.
type StaticTokenSource string

func (s StaticTokenSource) AccessToken(context.Context) (string, error) {
	return string(s), nil
}

// TokenExpired reports whether a JWT access token is past its expiry claim.
// Tokens that do not parse as JWTs are assumed valid; the backend is the
// authority either way, this only saves a doomed round trip.
func TokenExpired(token string, now time.Time) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}

// Client talks to the intercom backend.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a backend client. baseURL is the API root without the
// /v3 prefix.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetCallStatus fetches the call-status resource for guid and decodes it into
// a call record.
func (c *Client) GetCallStatus(ctx context.Context, guid string) (*call.Call, error) {
	if guid == "" {
		return nil, requestErr("call guid is empty")
	}

	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v3/me/calls/%s/status", guid), nil)
	if err != nil {
		return nil, err
	}
	return decodeCallStatus(body)
}

// GetProviderTokens fetches the per-provider credentials for a call, keyed by
// provider name. The backend mints these just in time for the device making
// the request.
func (c *Client) GetProviderTokens(ctx context.Context, callGUID, deviceUUID string) (map[string]string, error) {
	if deviceUUID == "" {
		return nil, requestErr("device uuid is empty")
	}

	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v3/me/calls/%s/token", callGUID), newTokenRequest(deviceUUID))
	if err != nil {
		return nil, err
	}

	var doc providerTokensDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, responseErr(err, "malformed provider tokens payload")
	}
	return doc.Tokens, nil
}

// do performs one authenticated request and returns the raw body. All
// failures come back as RequestError/ResponseError; nothing panics.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, requestErr("encode payload: %v", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, requestErr("%v", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, requestErr("access token: %v", err)
		}
		if TokenExpired(token, time.Now()) {
			slog.Warn("[API] Access token looks expired, sending anyway", "path", path)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, responseErr(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, responseErr(err, "read body for %s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, responseErr(nil, "%s %s returned %d", method, path, resp.StatusCode)
	}
	return raw, nil
}
