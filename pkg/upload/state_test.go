package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/artifactoor/pkg/objstore"
)

func env(status int, code string) *objstore.Error {
	return &objstore.Error{Status: status, Code: code, Message: "test"}
}

func TestTransition_Success(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		pending int
		want    State
	}{
		{name: "auth to list", state: StateGetAuth, pending: 2, want: StateListExisting},
		{name: "list to dedup", state: StateListExisting, pending: 2, want: StateCheckDedup},
		{name: "dedup with pending to upload url", state: StateCheckDedup, pending: 1, want: StateGetUploadURL},
		{name: "dedup with nothing pending is done", state: StateCheckDedup, pending: 0, want: StateDone},
		{name: "upload url to upload", state: StateGetUploadURL, pending: 1, want: StateUploadAll},
		{name: "upload to done", state: StateUploadAll, pending: 0, want: StateDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Transition(tt.state, Outcome{Pending: tt.pending})

			require.NoError(t, d.Err)
			assert.Equal(t, tt.want, d.Next)
			assert.False(t, d.Retry)
			assert.False(t, d.Backoff)
		})
	}
}

func TestTransition_UploadAllSuccessWithPendingIsInternal(t *testing.T) {
	d := Transition(StateUploadAll, Outcome{Pending: 1})

	assert.Equal(t, StateFailed, d.Next)

	var internal *InternalError
	require.ErrorAs(t, d.Err, &internal)
	assert.Equal(t, StateUploadAll, internal.State)
}

func TestTransition_Errors(t *testing.T) {
	tests := []struct {
		name        string
		state       State
		err         *objstore.Error
		wantNext    State
		wantRetry   bool
		wantBackoff bool
		wantErr     error
	}{
		// GetAuth.
		{name: "auth transport", state: StateGetAuth, err: env(0, objstore.CodeSendError),
			wantNext: StateGetAuth, wantRetry: true},
		{name: "auth bad request", state: StateGetAuth, err: env(400, "bad_request"),
			wantNext: StateFailed, wantErr: ErrBadRequest},
		{name: "auth denied", state: StateGetAuth, err: env(401, objstore.CodeUnauthorized),
			wantNext: StateFailed, wantErr: ErrAuthDenied},
		{name: "auth unavailable", state: StateGetAuth, err: env(503, "service_unavailable"),
			wantNext: StateGetAuth, wantRetry: true, wantBackoff: true},

		// ListExisting.
		{name: "list transport", state: StateListExisting, err: env(0, objstore.CodeSendError),
			wantNext: StateListExisting, wantRetry: true},
		{name: "list bad request", state: StateListExisting, err: env(400, "bad_request"),
			wantNext: StateFailed, wantErr: ErrBadRequest},
		{name: "list expired token", state: StateListExisting, err: env(401, objstore.CodeExpiredAuthToken),
			wantNext: StateGetAuth, wantRetry: true},
		{name: "list bad token", state: StateListExisting, err: env(401, objstore.CodeBadAuthToken),
			wantNext: StateGetAuth, wantRetry: true},
		{name: "list unknown 401", state: StateListExisting, err: env(401, "bad_key"),
			wantNext: StateGetAuth, wantRetry: true},
		{name: "list unavailable", state: StateListExisting, err: env(503, "service_unavailable"),
			wantNext: StateListExisting, wantRetry: true, wantBackoff: true},

		// GetUploadURL.
		{name: "upload url transport", state: StateGetUploadURL, err: env(0, objstore.CodeSendError),
			wantNext: StateGetUploadURL, wantRetry: true},
		{name: "upload url bad request", state: StateGetUploadURL, err: env(400, "bad_request"),
			wantNext: StateFailed, wantErr: ErrBadRequest},
		{name: "upload url 401", state: StateGetUploadURL, err: env(401, objstore.CodeExpiredAuthToken),
			wantNext: StateGetAuth, wantRetry: true},
		{name: "upload url unavailable restarts auth", state: StateGetUploadURL, err: env(503, "service_unavailable"),
			wantNext: StateGetAuth, wantRetry: true, wantBackoff: true},

		// UploadAll.
		{name: "upload transport", state: StateUploadAll, err: env(0, objstore.CodeSendError),
			wantNext: StateGetUploadURL, wantRetry: true},
		{name: "upload bad request", state: StateUploadAll, err: env(400, "bad_request"),
			wantNext: StateFailed, wantErr: ErrBadRequest},
		{name: "upload capability missing", state: StateUploadAll, err: env(401, objstore.CodeUnauthorized),
			wantNext: StateFailed, wantErr: ErrCapabilityInsufficient},
		{name: "upload bad token", state: StateUploadAll, err: env(401, objstore.CodeBadAuthToken),
			wantNext: StateGetUploadURL, wantRetry: true},
		{name: "upload expired token", state: StateUploadAll, err: env(401, objstore.CodeExpiredAuthToken),
			wantNext: StateGetUploadURL, wantRetry: true},
		{name: "upload cap exceeded", state: StateUploadAll, err: env(403, "transaction_cap_exceeded"),
			wantNext: StateFailed, wantErr: ErrCapExceeded},
		{name: "upload timeout", state: StateUploadAll, err: env(408, "request_timeout"),
			wantNext: StateUploadAll, wantRetry: true, wantBackoff: true},
		{name: "upload unavailable", state: StateUploadAll, err: env(503, "service_unavailable"),
			wantNext: StateGetUploadURL, wantRetry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Transition(tt.state, Outcome{Err: tt.err, Pending: 1})

			assert.Equal(t, tt.wantNext, d.Next)
			assert.Equal(t, tt.wantRetry, d.Retry)
			assert.Equal(t, tt.wantBackoff, d.Backoff)

			if tt.wantErr == nil {
				require.NoError(t, d.Err)

				return
			}

			require.ErrorIs(t, d.Err, tt.wantErr)

			var got *objstore.Error
			require.ErrorAs(t, d.Err, &got)
			assert.Equal(t, tt.err.Status, got.Status)
		})
	}
}

func TestTransition_InternalFaults(t *testing.T) {
	tests := []struct {
		name  string
		state State
		err   *objstore.Error
	}{
		{name: "405 on upload", state: StateUploadAll, err: env(405, "method_not_allowed")},
		{name: "unknown 401 on upload", state: StateUploadAll, err: env(401, "bad_key")},
		{name: "500 on list", state: StateListExisting, err: env(500, "internal_error")},
		{name: "403 on list", state: StateListExisting, err: env(403, "transaction_cap_exceeded")},
		{name: "408 on upload url", state: StateGetUploadURL, err: env(408, "request_timeout")},
		{name: "403 on auth", state: StateGetAuth, err: env(403, "transaction_cap_exceeded")},
		{name: "error out of dedup", state: StateCheckDedup, err: env(503, "service_unavailable")},
		{name: "undecodable upload response", state: StateUploadAll, err: env(200, objstore.CodeMalformedResponse)},
		{name: "undecodable listing", state: StateListExisting, err: env(200, objstore.CodeMalformedResponse)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Transition(tt.state, Outcome{Err: tt.err, Pending: 1})

			assert.Equal(t, StateFailed, d.Next)
			assert.False(t, d.Retry)

			var internal *InternalError
			require.ErrorAs(t, d.Err, &internal)
			assert.Equal(t, tt.state, internal.State)
			assert.Equal(t, tt.err, internal.Envelope)
			assert.Contains(t, d.Err.Error(), "internal error")
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "get_upload_url", StateGetUploadURL.String())
	assert.Equal(t, "state(42)", State(42).String())
}
