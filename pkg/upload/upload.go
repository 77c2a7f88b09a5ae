package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/objstore"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Run statuses recorded for each Upload call.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Uploader uploads local files to the configured bucket.
type Uploader interface {
	// Preflight verifies that the credentials authorize and carry the
	// capabilities the pipeline needs.
	Preflight(ctx context.Context) error

	// Upload uploads paths under subdirectory and returns the public URL of
	// every file. Paths are checked before any network activity.
	Upload(ctx context.Context, subdirectory string, paths []string) ([]Artifact, error)
}

// Artifact is the outcome for one input file.
type Artifact struct {
	Path         string `json:"path" yaml:"path"`
	Key          string `json:"key" yaml:"key"`
	URL          string `json:"url" yaml:"url"`
	Hash         string `json:"hash" yaml:"hash"`
	Size         int64  `json:"size" yaml:"size"`
	Deduplicated bool   `json:"deduplicated" yaml:"deduplicated"`
	FileID       string `json:"file_id,omitempty" yaml:"file_id,omitempty"`
}

// RunRecord describes a finished Upload call.
type RunRecord struct {
	RunID        string
	Subdirectory string
	Status       string
	Error        string
	Files        int
	Attempts     int
	StartedAt    time.Time
	FinishedAt   time.Time
	Artifacts    []Artifact
}

// Recorder persists run records.
type Recorder interface {
	RecordRun(ctx context.Context, rec *RunRecord) error
}

// Options configures an uploader.
type Options struct {
	Credentials     objstore.Credentials
	MaxAttempts     int
	RetryBackoff    time.Duration
	ProbeRateLimit  float64
	MaxFileSize     int64
	HashConcurrency int
	// Recorder is optional.
	Recorder Recorder
}

type uploader struct {
	log      logrus.FieldLogger
	provider Provider
	opts     Options
}

// Ensure interface compliance.
var _ Uploader = (*uploader)(nil)

// NewUploader creates an uploader for the provider described by cfg.
func NewUploader(
	log logrus.FieldLogger, cfg *config.StorageConfig, recorder Recorder,
) (Uploader, error) {
	maxSize, err := cfg.MaxFileSizeBytes()
	if err != nil {
		return nil, err
	}

	client := objstore.NewClient(log, objstore.Options{
		AuthorizeURL: cfg.AuthorizeURL,
		ListLimit:    cfg.ListLimit,
		HTTPTimeout:  cfg.HTTPTimeout,
	})

	return New(log, client, Options{
		Credentials: objstore.Credentials{
			KeyID:          cfg.KeyID,
			ApplicationKey: cfg.ApplicationKey,
		},
		MaxAttempts:     cfg.MaxAttempts,
		RetryBackoff:    cfg.RetryBackoff,
		ProbeRateLimit:  cfg.ProbeRateLimit,
		MaxFileSize:     maxSize,
		HashConcurrency: cfg.HashConcurrency,
		Recorder:        recorder,
	}), nil
}

// New creates an uploader on top of an arbitrary provider.
func New(log logrus.FieldLogger, provider Provider, opts Options) Uploader {
	return &uploader{
		log:      log.WithField("component", "uploader"),
		provider: provider,
		opts:     opts,
	}
}

// Preflight authorizes once and checks the granted capabilities.
func (u *uploader) Preflight(ctx context.Context) error {
	session, err := u.provider.Authorize(ctx, u.opts.Credentials)
	if err != nil {
		var env *objstore.Error
		if errors.As(err, &env) && env.Kind().IsAuth() {
			return terminal(ErrAuthDenied, env)
		}

		return fmt.Errorf("authorizing: %w", err)
	}

	for _, capability := range []string{
		objstore.CapabilityListFiles,
		objstore.CapabilityWriteFiles,
	} {
		if !session.HasCapability(capability) {
			return fmt.Errorf("missing %q: %w", capability, ErrCapabilityInsufficient)
		}
	}

	u.log.WithFields(logrus.Fields{
		"bucket":       session.BucketName,
		"capabilities": session.Capabilities,
	}).Info("Preflight succeeded")

	return nil
}

// Upload prepares candidates, runs the pipeline and records the outcome.
func (u *uploader) Upload(
	ctx context.Context, subdirectory string, paths []string,
) ([]Artifact, error) {
	candidates, err := NewCandidates(ctx, subdirectory, paths, CandidateOptions{
		MaxFileSize: u.opts.MaxFileSize,
		Concurrency: u.opts.HashConcurrency,
	})
	if err != nil {
		return nil, err
	}

	rec := &RunRecord{
		RunID:        uuid.New().String(),
		Subdirectory: subdirectory,
		Files:        len(candidates),
		StartedAt:    time.Now().UTC(),
	}

	log := u.log.WithFields(logrus.Fields{
		"run":          rec.RunID,
		"subdirectory": subdirectory,
		"files":        len(candidates),
	})

	log.Info("Starting upload")

	orchestrator := NewOrchestrator(log, u.provider, OrchestratorOptions{
		Credentials:    u.opts.Credentials,
		MaxAttempts:    u.opts.MaxAttempts,
		RetryBackoff:   u.opts.RetryBackoff,
		ProbeRateLimit: u.opts.ProbeRateLimit,
	})

	report, runErr := orchestrator.Run(ctx, ListPrefix(subdirectory), candidates)

	rec.FinishedAt = time.Now().UTC()

	if report != nil {
		rec.Attempts = report.Attempts
	}

	var artifacts []Artifact

	if runErr != nil {
		rec.Status = RunStatusFailed
		rec.Error = runErr.Error()
	} else {
		rec.Status = RunStatusSucceeded
		artifacts = toArtifacts(candidates)
		rec.Artifacts = artifacts
	}

	// Record even when the caller has cancelled the run.
	u.record(context.WithoutCancel(ctx), log, rec)

	if runErr != nil {
		return nil, runErr
	}

	return artifacts, nil
}

func (u *uploader) record(ctx context.Context, log logrus.FieldLogger, rec *RunRecord) {
	if u.opts.Recorder == nil {
		return
	}

	if err := u.opts.Recorder.RecordRun(ctx, rec); err != nil {
		log.WithError(err).Warn("Failed to record upload run")
	}
}

func toArtifacts(candidates []*Candidate) []Artifact {
	artifacts := make([]Artifact, 0, len(candidates))

	for _, c := range candidates {
		a := Artifact{
			Path:         c.Path,
			Key:          c.Key,
			URL:          c.URL,
			Hash:         c.Hash,
			Size:         c.Size,
			Deduplicated: c.AlreadyUploaded,
		}

		if c.Result != nil {
			a.FileID = c.Result.FileID
		}

		artifacts = append(artifacts, a)
	}

	return artifacts
}

// URLs returns the path→URL mapping of artifacts.
func URLs(artifacts []Artifact) map[string]string {
	out := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		out[a.Path] = a.URL
	}

	return out
}
