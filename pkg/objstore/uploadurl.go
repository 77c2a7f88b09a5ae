package objstore

import "context"

// UploadLease is an upload endpoint and the token scoped to it. It stays
// usable for any number of uploads until the provider rejects it.
type UploadLease struct {
	BucketID  string `json:"bucketId"`
	UploadURL string `json:"uploadUrl"`
	Token     string `json:"authorizationToken"`
}

type getUploadURLRequest struct {
	BucketID string `json:"bucketId"`
}

// GetUploadURL acquires a fresh upload lease for the session's bucket.
func (c *Client) GetUploadURL(ctx context.Context, session *Session) (*UploadLease, error) {
	var lease UploadLease

	if err := c.postJSON(ctx, session.APIURL+"/get_upload_url", session.Token,
		getUploadURLRequest{BucketID: session.BucketID}, &lease); err != nil {
		return nil, err
	}

	return &lease, nil
}
