package objstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Capabilities the upload pipeline relies on.
const (
	CapabilityListFiles  = "listFiles"
	CapabilityWriteFiles = "writeFiles"
)

// Session is an authorized account session bound to a single bucket.
// A stale session must be replaced by a fresh Authorize call, never patched.
type Session struct {
	AccountID    string
	Token        string
	DownloadURL  string
	APIURL       string
	BucketID     string
	BucketName   string
	Capabilities []string

	dirty bool
}

// Invalidate marks the session as stale.
func (s *Session) Invalidate() {
	s.dirty = true
}

// Stale reports whether the session has been invalidated.
func (s *Session) Stale() bool {
	return s == nil || s.dirty
}

// HasCapability reports whether the session was granted capability.
func (s *Session) HasCapability(capability string) bool {
	for _, c := range s.Capabilities {
		if c == capability {
			return true
		}
	}

	return false
}

// PublicURL returns the download URL of key in the session's bucket.
// Only the most recent object stored at key is reachable through it.
func (s *Session) PublicURL(key string) string {
	return strings.TrimRight(s.DownloadURL, "/") +
		"/file/" + url.PathEscape(s.BucketName) + "/" + EscapeKey(key)
}

// EscapeKey path-escapes each segment of an object key.
func EscapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

type authorizeResponse struct {
	AccountID          string `json:"accountId"`
	AuthorizationToken string `json:"authorizationToken"`
	DownloadURL        string `json:"downloadUrl"`
	APIURL             string `json:"apiUrl"`
	Allowed            struct {
		BucketID     string   `json:"bucketId"`
		BucketName   string   `json:"bucketName"`
		Capabilities []string `json:"capabilities"`
	} `json:"allowed"`
}

// Authorize exchanges credentials for a new session.
func (c *Client) Authorize(ctx context.Context, creds Credentials) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authorizeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.SetBasicAuth(creds.KeyID, creds.ApplicationKey)
	req.Header.Set("Accept", "application/json")

	var resp authorizeResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	session := &Session{
		AccountID:    resp.AccountID,
		Token:        resp.AuthorizationToken,
		DownloadURL:  resp.DownloadURL,
		APIURL:       strings.TrimRight(resp.APIURL, "/"),
		BucketID:     resp.Allowed.BucketID,
		BucketName:   resp.Allowed.BucketName,
		Capabilities: resp.Allowed.Capabilities,
	}

	c.log.WithFields(logrus.Fields{
		"account": session.AccountID,
		"bucket":  session.BucketName,
	}).Debug("Authorized session")

	return session, nil
}
