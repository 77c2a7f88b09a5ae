package upload

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/ethpandaops/artifactoor/pkg/objstore"
	"github.com/sirupsen/logrus"
)

// Transferer sends one object to an upload endpoint.
type Transferer interface {
	UploadFile(
		ctx context.Context, lease *objstore.UploadLease, req objstore.UploadRequest,
	) (*objstore.FileInfo, error)
}

// Executor uploads a single candidate.
type Executor struct {
	log    logrus.FieldLogger
	client Transferer
}

// NewExecutor creates an Executor.
func NewExecutor(log logrus.FieldLogger, client Transferer) *Executor {
	return &Executor{
		log:    log.WithField("component", "executor"),
		client: client,
	}
}

// Upload streams the candidate's file through lease. Provider failures are
// returned as *objstore.Error, anything else is a local failure.
func (e *Executor) Upload(
	ctx context.Context, lease *objstore.UploadLease, c *Candidate,
) (*objstore.FileInfo, error) {
	contentType, err := ContentType(c.Path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	e.log.WithFields(logrus.Fields{
		"key":  c.Key,
		"size": units.HumanSize(float64(c.Size)),
	}).Info("Uploading file")

	return e.client.UploadFile(ctx, lease, objstore.UploadRequest{
		Key:         c.Key,
		ContentType: contentType,
		Size:        c.Size,
		ContentHash: c.Hash,
		Body:        f,
	})
}
