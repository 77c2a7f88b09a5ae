package objstore_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/artifactoor/pkg/objstore"
	"github.com/ethpandaops/artifactoor/pkg/objstore/objstoretest"
)

func newTestClient(t *testing.T, srv *objstoretest.Server) *objstore.Client {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return objstore.NewClient(log, objstore.Options{
		AuthorizeURL: srv.AuthorizeURL(),
	})
}

func authorize(t *testing.T, c *objstore.Client, srv *objstoretest.Server) *objstore.Session {
	t.Helper()

	session, err := c.Authorize(context.Background(), srv.Credentials())
	require.NoError(t, err)

	return session
}

func TestClient_Authorize(t *testing.T) {
	srv := objstoretest.New(t)
	c := newTestClient(t, srv)

	session := authorize(t, c, srv)

	assert.Equal(t, "account-0001", session.AccountID)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, srv.URL()+"/api", session.APIURL)
	assert.Equal(t, srv.BucketName(), session.BucketName)
	assert.True(t, session.HasCapability(objstore.CapabilityWriteFiles))
	assert.False(t, session.Stale())

	session.Invalidate()
	assert.True(t, session.Stale())
}

func TestClient_AuthorizeBadCredentials(t *testing.T) {
	srv := objstoretest.New(t)
	c := newTestClient(t, srv)

	_, err := c.Authorize(context.Background(), objstore.Credentials{
		KeyID:          "wrong",
		ApplicationKey: "wrong",
	})
	require.Error(t, err)

	var env *objstore.Error
	require.ErrorAs(t, err, &env)
	assert.Equal(t, http.StatusUnauthorized, env.Status)
	assert.Equal(t, objstore.KindUnauthorized, env.Kind())
}

func TestClient_TransportFailure(t *testing.T) {
	srv := objstoretest.New(t)
	c := newTestClient(t, srv)
	session := authorize(t, c, srv)

	srv.Fail(objstoretest.EndpointListObjects, objstoretest.Fault{Status: 0})

	_, err := c.ListObjects(context.Background(), session, "")
	require.Error(t, err)

	var env *objstore.Error
	require.ErrorAs(t, err, &env)
	assert.Equal(t, 0, env.Status)
	assert.Equal(t, objstore.CodeSendError, env.Code)
	assert.Equal(t, objstore.KindTransport, env.Kind())
	assert.NotNil(t, errors.Unwrap(env))
}

func TestClient_MalformedSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	c := objstore.NewClient(log, objstore.Options{AuthorizeURL: srv.URL})

	_, err := c.Authorize(context.Background(), objstore.Credentials{KeyID: "k", ApplicationKey: "s"})

	var env *objstore.Error
	require.ErrorAs(t, err, &env)
	assert.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, objstore.CodeMalformedResponse, env.Code)
	assert.Equal(t, objstore.KindUnexpected, env.Kind())
	assert.Contains(t, env.Error(), "decoding response")
}

func TestClient_ListObjects(t *testing.T) {
	srv := objstoretest.New(t)
	c := newTestClient(t, srv)
	session := authorize(t, c, srv)

	srv.Put("maps/a.zip", []byte("alpha"))
	srv.Put("maps/b.zip", []byte("beta"))
	srv.Put("other/c.zip", []byte("gamma"))

	objects, err := c.ListObjects(context.Background(), session, "maps/")
	require.NoError(t, err)
	require.Len(t, objects, 2)

	assert.Equal(t, "maps/a.zip", objects[0].FileName)
	assert.Equal(t, objstoretest.Hash([]byte("alpha")), objects[0].ContentHash)
	assert.Equal(t, "maps/b.zip", objects[1].FileName)
}

func TestClient_ListObjectsServiceUnavailable(t *testing.T) {
	srv := objstoretest.New(t)
	c := newTestClient(t, srv)
	session := authorize(t, c, srv)

	srv.Fail(objstoretest.EndpointListObjects, objstoretest.Fault{
		Status:  http.StatusServiceUnavailable,
		Code:    "service_unavailable",
		Message: "try again",
	})

	_, err := c.ListObjects(context.Background(), session, "")

	var env *objstore.Error
	require.ErrorAs(t, err, &env)
	assert.Equal(t, objstore.KindServiceUnavailable, env.Kind())
	assert.Equal(t, "try again", env.Message)
}

func TestClient_UploadFile(t *testing.T) {
	srv := objstoretest.New(t)
	c := newTestClient(t, srv)
	session := authorize(t, c, srv)

	lease, err := c.GetUploadURL(context.Background(), session)
	require.NoError(t, err)
	assert.NotEmpty(t, lease.UploadURL)
	assert.NotEmpty(t, lease.Token)

	data := []byte("benchmark output")

	info, err := c.UploadFile(context.Background(), lease, objstore.UploadRequest{
		Key:         "maps/run 1.json",
		ContentType: "application/json",
		Size:        int64(len(data)),
		ContentHash: objstoretest.Hash(data),
		Body:        bytes.NewReader(data),
	})
	require.NoError(t, err)
	assert.Equal(t, "maps/run 1.json", info.FileName)
	assert.Equal(t, int64(len(data)), info.ContentLength)

	stored, ok := srv.Object("maps/run 1.json")
	require.True(t, ok)
	assert.Equal(t, data, stored)

	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "application/json", uploads[0].ContentType)
	assert.Equal(t, lease.Token, uploads[0].Token)

	require.NoError(t, c.Probe(context.Background(), session.PublicURL("maps/run 1.json")))
}

func TestClient_UploadFileHashMismatch(t *testing.T) {
	srv := objstoretest.New(t)
	c := newTestClient(t, srv)
	session := authorize(t, c, srv)

	lease, err := c.GetUploadURL(context.Background(), session)
	require.NoError(t, err)

	_, err = c.UploadFile(context.Background(), lease, objstore.UploadRequest{
		Key:         "a.zip",
		ContentType: "application/zip",
		Size:        3,
		ContentHash: "deadbeef",
		Body:        bytes.NewReader([]byte("abc")),
	})

	var env *objstore.Error
	require.ErrorAs(t, err, &env)
	assert.Equal(t, objstore.KindBadRequest, env.Kind())
}

func TestClient_ProbeMissing(t *testing.T) {
	srv := objstoretest.New(t)
	c := newTestClient(t, srv)
	session := authorize(t, c, srv)

	err := c.Probe(context.Background(), session.PublicURL("missing.zip"))
	require.Error(t, err)
}

func TestSession_PublicURL(t *testing.T) {
	session := &objstore.Session{
		DownloadURL: "https://dl.example.com/",
		BucketName:  "artifacts",
	}

	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "flat key", key: "a.zip", want: "https://dl.example.com/file/artifacts/a.zip"},
		{name: "nested key", key: "maps/a.zip", want: "https://dl.example.com/file/artifacts/maps/a.zip"},
		{name: "space escaped", key: "maps/run 1.zip", want: "https://dl.example.com/file/artifacts/maps/run%201.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, session.PublicURL(tt.key))
		})
	}
}
