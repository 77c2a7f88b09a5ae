// Package objstoretest provides an in-process fake of the object-storage
// provider with fault injection, for use in tests.
package objstoretest

import (
	"crypto/sha1" //nolint:gosec // matches the provider's content hash.
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ethpandaops/artifactoor/pkg/objstore"
	"github.com/go-chi/chi/v5"
)

// Endpoint names a provider operation for fault injection and counting.
type Endpoint string

const (
	EndpointAuthorize    Endpoint = "authorize"
	EndpointListObjects  Endpoint = "list_objects"
	EndpointGetUploadURL Endpoint = "get_upload_url"
	EndpointUpload       Endpoint = "upload"
	EndpointDownload     Endpoint = "download"
)

const (
	defaultKeyID      = "test-key-id"
	defaultAppKey     = "test-application-key"
	defaultBucketID   = "bucket-0001"
	defaultBucketName = "artifacts"
)

// Fault is a canned failure returned instead of handling a request.
// A zero Status drops the connection without a response.
type Fault struct {
	Status  int
	Code    string
	Message string
}

// Upload records one accepted upload request.
type Upload struct {
	Key         string
	ContentType string
	ContentHash string
	Size        int64
	Token       string
}

type storedObject struct {
	data []byte
	hash string
}

// Server is a fake provider backed by httptest.
type Server struct {
	srv *httptest.Server

	mu           sync.Mutex
	keyID        string
	appKey       string
	bucketID     string
	bucketName   string
	capabilities []string
	objects      map[string]storedObject
	faults       map[Endpoint][]Fault
	calls        map[Endpoint]int
	uploads      []Upload
	tokens       map[string]struct{}
	leases       map[string]struct{}
	seq          int
}

// Option customises a Server.
type Option func(*Server)

// WithCapabilities overrides the capabilities granted on authorization.
func WithCapabilities(capabilities ...string) Option {
	return func(s *Server) {
		s.capabilities = capabilities
	}
}

// WithBucket overrides the bucket identity.
func WithBucket(id, name string) Option {
	return func(s *Server) {
		s.bucketID = id
		s.bucketName = name
	}
}

// New starts a fake provider that is closed when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		keyID:      defaultKeyID,
		appKey:     defaultAppKey,
		bucketID:   defaultBucketID,
		bucketName: defaultBucketName,
		capabilities: []string{
			objstore.CapabilityListFiles,
			objstore.CapabilityWriteFiles,
		},
		objects: make(map[string]storedObject, 8),
		faults:  make(map[Endpoint][]Fault, 4),
		calls:   make(map[Endpoint]int, 5),
		tokens:  make(map[string]struct{}, 2),
		leases:  make(map[string]struct{}, 2),
	}

	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/authorize", s.handleAuthorize)
	r.Post("/api/list_objects", s.handleListObjects)
	r.Post("/api/get_upload_url", s.handleGetUploadURL)
	r.Post("/upload/{bucketID}", s.handleUpload)
	r.Head("/file/{bucketName}/*", s.handleDownload)
	r.Get("/file/{bucketName}/*", s.handleDownload)

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)

	return s
}

// URL returns the base URL of the fake provider.
func (s *Server) URL() string {
	return s.srv.URL
}

// AuthorizeURL returns the account authorization endpoint.
func (s *Server) AuthorizeURL() string {
	return s.srv.URL + "/authorize"
}

// Credentials returns credentials the server accepts.
func (s *Server) Credentials() objstore.Credentials {
	return objstore.Credentials{KeyID: s.keyID, ApplicationKey: s.appKey}
}

// BucketName returns the bucket name reported in sessions.
func (s *Server) BucketName() string {
	return s.bucketName
}

// PublicURL returns the download URL the server serves key under.
func (s *Server) PublicURL(key string) string {
	return s.srv.URL + "/file/" + s.bucketName + "/" + objstore.EscapeKey(key)
}

// Fail queues faults for endpoint; each is consumed by one request.
func (s *Server) Fail(endpoint Endpoint, faults ...Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[endpoint] = append(s.faults[endpoint], faults...)
}

// FailN queues the same fault n times.
func (s *Server) FailN(endpoint Endpoint, n int, fault Fault) {
	for range n {
		s.Fail(endpoint, fault)
	}
}

// Calls returns how many requests endpoint received, faults included.
func (s *Server) Calls(endpoint Endpoint) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[endpoint]
}

// Uploads returns the accepted uploads in arrival order.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Upload, len(s.uploads))
	copy(out, s.uploads)

	return out
}

// Put stores data at key as if it had been uploaded earlier.
func (s *Server) Put(key string, data []byte) {
	s.PutWithHash(key, data, Hash(data))
}

// PutWithHash stores data at key with an explicit listing hash.
func (s *Server) PutWithHash(key string, data []byte, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = storedObject{data: data, hash: hash}
}

// Object returns the bytes stored at key.
func (s *Server) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]

	return obj.data, ok
}

// Hash returns the content hash the provider expects for data.
func Hash(data []byte) string {
	sum := sha1.Sum(data) //nolint:gosec // provider content hash.

	return hex.EncodeToString(sum[:])
}

// enter counts the request and pops a queued fault, if any.
func (s *Server) enter(endpoint Endpoint) (Fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[endpoint]++

	queue := s.faults[endpoint]
	if len(queue) == 0 {
		return Fault{}, false
	}

	s.faults[endpoint] = queue[1:]

	return queue[0], true
}

func (s *Server) nextToken(prefix string) string {
	s.seq++

	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func writeFault(w http.ResponseWriter, f Fault) {
	if f.Status == 0 {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()

				return
			}
		}

		f.Status = http.StatusBadGateway
	}

	msg := f.Message
	if msg == "" {
		msg = http.StatusText(f.Status)
	}

	writeJSON(w, f.Status, objstore.Error{Status: f.Status, Code: f.Code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.enter(EndpointAuthorize); ok {
		writeFault(w, f)

		return
	}

	user, pass, ok := r.BasicAuth()
	if !ok || user != s.keyID || pass != s.appKey {
		writeFault(w, Fault{
			Status:  http.StatusUnauthorized,
			Code:    objstore.CodeUnauthorized,
			Message: "invalid key id or application key",
		})

		return
	}

	s.mu.Lock()
	token := s.nextToken("account-token")
	s.tokens[token] = struct{}{}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"accountId":          "account-0001",
		"authorizationToken": token,
		"downloadUrl":        s.srv.URL,
		"apiUrl":             s.srv.URL + "/api",
		"allowed": map[string]any{
			"bucketId":     s.bucketID,
			"bucketName":   s.bucketName,
			"capabilities": s.capabilities,
		},
	})
}

func (s *Server) validToken(token string, set map[string]struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := set[token]

	return ok
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.enter(EndpointListObjects); ok {
		writeFault(w, f)

		return
	}

	if !s.validToken(r.Header.Get("Authorization"), s.tokens) {
		writeFault(w, Fault{Status: http.StatusUnauthorized, Code: objstore.CodeBadAuthToken})

		return
	}

	var req struct {
		BucketID     string `json:"bucketId"`
		MaxFileCount int    `json:"maxFileCount"`
		Prefix       string `json:"prefix"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BucketID != s.bucketID ||
		req.MaxFileCount < 1 || req.MaxFileCount > objstore.MaxListCount {
		writeFault(w, Fault{Status: http.StatusBadRequest, Code: "bad_request"})

		return
	}

	s.mu.Lock()

	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		if strings.HasPrefix(key, req.Prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	if len(keys) > req.MaxFileCount {
		keys = keys[:req.MaxFileCount]
	}

	files := make([]objstore.Object, 0, len(keys))
	for i, key := range keys {
		obj := s.objects[key]
		files = append(files, objstore.Object{
			AccountID:     "account-0001",
			Action:        "upload",
			BucketID:      s.bucketID,
			ContentLength: int64(len(obj.data)),
			ContentHash:   obj.hash,
			FileID:        fmt.Sprintf("file-%04d", i),
			FileName:      key,
		})
	}

	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleGetUploadURL(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.enter(EndpointGetUploadURL); ok {
		writeFault(w, f)

		return
	}

	if !s.validToken(r.Header.Get("Authorization"), s.tokens) {
		writeFault(w, Fault{Status: http.StatusUnauthorized, Code: objstore.CodeBadAuthToken})

		return
	}

	s.mu.Lock()
	token := s.nextToken("upload-token")
	s.leases[token] = struct{}{}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, objstore.UploadLease{
		BucketID:  s.bucketID,
		UploadURL: s.srv.URL + "/upload/" + s.bucketID,
		Token:     token,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.enter(EndpointUpload); ok {
		_, _ = io.Copy(io.Discard, r.Body)
		writeFault(w, f)

		return
	}

	token := r.Header.Get("Authorization")
	if !s.validToken(token, s.leases) {
		writeFault(w, Fault{Status: http.StatusUnauthorized, Code: objstore.CodeBadAuthToken})

		return
	}

	key, err := url.PathUnescape(r.Header.Get(objstore.HeaderFileName))
	if err != nil || key == "" {
		writeFault(w, Fault{Status: http.StatusBadRequest, Code: "bad_request", Message: "invalid file name"})

		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeFault(w, Fault{Status: http.StatusBadRequest, Code: "bad_request", Message: err.Error()})

		return
	}

	hash := r.Header.Get(objstore.HeaderContentHash)
	if hash != Hash(data) {
		writeFault(w, Fault{Status: http.StatusBadRequest, Code: "bad_request", Message: "checksum did not match data received"})

		return
	}

	s.mu.Lock()
	s.objects[key] = storedObject{data: data, hash: hash}
	s.uploads = append(s.uploads, Upload{
		Key:         key,
		ContentType: r.Header.Get("Content-Type"),
		ContentHash: hash,
		Size:        int64(len(data)),
		Token:       token,
	})
	fileID := s.nextToken("file")
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, objstore.FileInfo{
		AccountID:     "account-0001",
		Action:        "upload",
		BucketID:      s.bucketID,
		ContentLength: int64(len(data)),
		ContentHash:   hash,
		ContentType:   r.Header.Get("Content-Type"),
		FileID:        fileID,
		FileName:      key,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.enter(EndpointDownload); ok {
		writeFault(w, f)

		return
	}

	if chi.URLParam(r, "bucketName") != s.bucketName {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)

		return
	}

	data, ok := s.Object(key)
	if !ok {
		w.WriteHeader(http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}
