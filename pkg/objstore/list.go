package objstore

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Object is one entry of a bucket listing.
type Object struct {
	AccountID     string `json:"accountId"`
	Action        string `json:"action"`
	BucketID      string `json:"bucketId"`
	ContentLength int64  `json:"contentLength"`
	ContentHash   string `json:"contentHash"`
	FileID        string `json:"fileId"`
	FileName      string `json:"fileName"`
}

type listObjectsRequest struct {
	BucketID     string `json:"bucketId"`
	MaxFileCount int    `json:"maxFileCount"`
	Prefix       string `json:"prefix"`
}

type listObjectsResponse struct {
	Files []Object `json:"files"`
}

// ListObjects returns the first page of objects whose key starts with
// prefix. Objects beyond the first page are not returned.
func (c *Client) ListObjects(
	ctx context.Context, session *Session, prefix string,
) ([]Object, error) {
	var resp listObjectsResponse

	if err := c.postJSON(ctx, session.APIURL+"/list_objects", session.Token,
		listObjectsRequest{
			BucketID:     session.BucketID,
			MaxFileCount: c.listLimit,
			Prefix:       prefix,
		}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Files) >= c.listLimit {
		c.log.WithFields(logrus.Fields{
			"prefix": prefix,
			"limit":  c.listLimit,
		}).Debug("Listing page is full, objects beyond it are not checked")
	}

	return resp.Files, nil
}
