package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MaxListCount is the largest page the provider returns from list_objects.
	MaxListCount = 1000

	defaultHTTPTimeout = 60 * time.Second
)

// Credentials identify the account key used to authorize a session.
type Credentials struct {
	KeyID          string
	ApplicationKey string
}

// Options configures a Client.
type Options struct {
	// AuthorizeURL is the account authorization endpoint.
	AuthorizeURL string
	// ListLimit caps the number of objects requested per listing.
	ListLimit int
	// HTTPTimeout bounds every request. Zero selects a default.
	HTTPTimeout time.Duration
	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
}

// Client talks to the object-storage provider. It performs exactly one
// request per call and never retries.
type Client struct {
	log          logrus.FieldLogger
	httpClient   *http.Client
	authorizeURL string
	listLimit    int
}

// NewClient creates a provider client.
func NewClient(log logrus.FieldLogger, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}

		httpClient = &http.Client{Timeout: timeout}
	}

	limit := opts.ListLimit
	if limit <= 0 || limit > MaxListCount {
		limit = MaxListCount
	}

	return &Client{
		log:          log.WithField("component", "objstore"),
		httpClient:   httpClient,
		authorizeURL: opts.AuthorizeURL,
		listLimit:    limit,
	}
}

// postJSON sends body as JSON to url and decodes a 200 response into out.
func (c *Client) postJSON(
	ctx context.Context, url, token string, body, out any,
) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

// do executes req. Transport failures, non-200 responses and undecodable
// 200 bodies are returned as *Error; a 200 body is decoded into out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sendError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sendError(fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		env := decodeError(resp.StatusCode, body)

		c.log.WithFields(logrus.Fields{
			"url":    redactURL(req.URL.String()),
			"status": env.Status,
			"code":   env.Code,
		}).Debug("Provider returned error")

		return env
	}

	if out == nil {
		return nil
	}

	// The call may have taken effect, so this is not a local failure.
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{
			Status:  resp.StatusCode,
			Code:    CodeMalformedResponse,
			Message: fmt.Sprintf("decoding response: %v", err),
			cause:   err,
		}
	}

	return nil
}

// redactURL strips the query string, which may carry tokens.
func redactURL(u string) string {
	if idx := strings.IndexByte(u, '?'); idx >= 0 {
		return u[:idx]
	}

	return u
}
