package objstore

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Upload request headers.
const (
	HeaderFileName    = "X-Object-File-Name"
	HeaderContentHash = "X-Object-Content-Hash"
)

// UploadRequest describes one object transfer.
type UploadRequest struct {
	Key         string
	ContentType string
	Size        int64
	ContentHash string
	Body        io.Reader
}

// FileInfo is the provider's record of a stored object.
type FileInfo struct {
	AccountID     string `json:"accountId"`
	Action        string `json:"action"`
	BucketID      string `json:"bucketId"`
	ContentLength int64  `json:"contentLength"`
	ContentHash   string `json:"contentHash"`
	ContentType   string `json:"contentType"`
	FileID        string `json:"fileId"`
	FileName      string `json:"fileName"`
	UploadedAt    int64  `json:"uploadTimestamp"`
}

// UploadFile streams one object to the lease's upload endpoint.
func (c *Client) UploadFile(
	ctx context.Context, lease *UploadLease, r UploadRequest,
) (*FileInfo, error) {
	body := r.Body
	if r.Size == 0 {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lease.UploadURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.ContentLength = r.Size
	req.Header.Set("Authorization", lease.Token)
	req.Header.Set(HeaderFileName, EscapeKey(r.Key))
	req.Header.Set("Content-Type", r.ContentType)
	req.Header.Set(HeaderContentHash, r.ContentHash)

	c.log.WithFields(logrus.Fields{
		"key":  r.Key,
		"size": r.Size,
	}).Debug("Uploading object")

	var info FileInfo
	if err := c.do(req, &info); err != nil {
		return nil, err
	}

	return &info, nil
}
