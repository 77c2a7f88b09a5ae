package objstore

import (
	"context"
	"fmt"
	"net/http"
)

// Probe checks that url resolves to a reachable object with a HEAD request.
func (c *Client) Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sendError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &Error{
			Status:  resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
		}
	}

	return nil
}
