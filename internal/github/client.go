// Package github forwards read-only GitHub REST API calls.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/user/codeflare/pkg/logger"
)

// DefaultBaseURL is the public GitHub REST API root.
const DefaultBaseURL = "https://api.github.com/"

// mediaType is sent as the Accept header on every upstream call.
const mediaType = "application/vnd.github.v3+json"

var (
	// ErrUnreachable is returned when the upstream API could not be contacted.
	ErrUnreachable = errors.New("failed to contact GitHub API")
)

// UpstreamError reports a non-success response from GitHub.
type UpstreamError struct {
	StatusCode int
	Message    string // upstream message, for logs only
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("GitHub API Error: %s", http.StatusText(e.StatusCode))
}

// Proxy forwards requests to the GitHub REST API.
type Proxy struct {
	httpClient *http.Client
	baseURL    *url.URL
	userAgent  string
}

// NewProxy creates a proxy for the API rooted at baseURL. An empty baseURL
// selects DefaultBaseURL; timeout 0 leaves calls bounded only by the
// request context.
func NewProxy(baseURL, userAgent string, timeout time.Duration) (*Proxy, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub base url: %w", err)
	}
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}

	return &Proxy{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    u,
		userAgent:  userAgent,
	}, nil
}

// newClient builds a go-github client for a single call. go-github keeps
// rate-limit state per client; a fresh one per call keeps one caller's
// limits from short-circuiting another caller's requests.
func (p *Proxy) newClient() *github.Client {
	c := github.NewClient(p.httpClient)
	c.BaseURL = p.baseURL
	c.UserAgent = p.userAgent
	return c
}

// Forward performs a GET on route and returns the raw JSON body.
// authorization, when non-empty, is sent upstream unchanged.
func (p *Proxy) Forward(ctx context.Context, route Route, authorization string) (json.RawMessage, error) {
	client := p.newClient()

	req, err := client.NewRequest(http.MethodGet, route.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", mediaType)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	var body json.RawMessage
	_, err = client.Do(ctx, req, &body)
	if err == nil {
		return body, nil
	}

	if upstream := upstreamError(err); upstream != nil {
		logger.Error().
			Int("status", upstream.StatusCode).
			Str("path", route.String()).
			Str("upstream", upstream.Message).
			Msg("GitHub API error")
		return nil, upstream
	}

	var accepted *github.AcceptedError
	if errors.As(err, &accepted) {
		return json.RawMessage(accepted.Raw), nil
	}

	logger.Error().Err(err).Str("path", route.String()).Msg("Failed to fetch from GitHub API")
	return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func upstreamError(err error) *UpstreamError {
	var (
		errResp  *github.ErrorResponse
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
		resp     *http.Response
		message  string
	)
	switch {
	case errors.As(err, &errResp):
		resp, message = errResp.Response, errResp.Error()
	case errors.As(err, &rateErr):
		resp, message = rateErr.Response, rateErr.Message
	case errors.As(err, &abuseErr):
		resp, message = abuseErr.Response, abuseErr.Message
	default:
		return nil
	}
	if resp == nil {
		return nil
	}
	return &UpstreamError{StatusCode: resp.StatusCode, Message: message}
}
