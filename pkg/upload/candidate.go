package upload

import (
	"context"
	"crypto/sha1" //nolint:gosec // the provider identifies content by SHA-1.
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/ethpandaops/artifactoor/pkg/fsutil"
	"github.com/ethpandaops/artifactoor/pkg/objstore"
	"golang.org/x/sync/errgroup"
)

// Candidate is one local file considered for upload.
type Candidate struct {
	Path string
	Key  string
	Hash string
	Size int64

	// URL is the public URL, resolved during dedup.
	URL string
	// AlreadyUploaded is set when an identical object already exists at Key.
	AlreadyUploaded bool
	// Result is the provider's record of a successful transfer.
	Result *objstore.FileInfo
}

// Done reports whether the candidate needs no further transfer.
func (c *Candidate) Done() bool {
	return c.AlreadyUploaded || c.Result != nil
}

// RelativeKey returns the object key of filename under subdirectory. OS
// separators in subdirectory become "/" and only the base name of filename
// is kept.
func RelativeKey(subdirectory, filename string) string {
	name := filepath.Base(filename)

	dir := ListPrefix(subdirectory)
	if dir == "" {
		return name
	}

	return dir + name
}

// ListPrefix returns the listing prefix for subdirectory: empty, or the
// cleaned subdirectory with a trailing "/".
func ListPrefix(subdirectory string) string {
	dir := strings.Trim(filepath.ToSlash(subdirectory), "/")
	if dir == "" {
		return ""
	}

	dir = path.Clean(dir)
	if dir == "." {
		return ""
	}

	return dir + "/"
}

// CandidateOptions controls candidate preparation.
type CandidateOptions struct {
	// MaxFileSize rejects larger files. Zero disables the check.
	MaxFileSize int64
	// Concurrency bounds parallel hashing.
	Concurrency int
}

// NewCandidates validates paths and hashes their contents. Every path must
// exist and be a regular file; nothing is hashed until all paths pass.
func NewCandidates(
	ctx context.Context, subdirectory string, paths []string, opts CandidateOptions,
) ([]*Candidate, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}

	candidates := make([]*Candidate, 0, len(paths))
	seen := make(map[string]string, len(paths))

	for _, p := range paths {
		info, err := fsutil.StatRegular(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", p, ErrMissingSource)
			}

			return nil, fmt.Errorf("checking %s: %w", p, err)
		}

		if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
			return nil, fmt.Errorf("%s is %s, limit %s: %w", p,
				units.HumanSize(float64(info.Size())),
				units.HumanSize(float64(opts.MaxFileSize)),
				ErrFileTooLarge)
		}

		key := RelativeKey(subdirectory, p)
		if other, ok := seen[key]; ok {
			return nil, fmt.Errorf("%s and %s both map to %q: %w", other, p, key, ErrDuplicateKey)
		}

		seen[key] = p

		candidates = append(candidates, &Candidate{
			Path: p,
			Key:  key,
			Size: info.Size(),
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	g.SetLimit(limit)

	for _, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			hash, err := HashFile(c.Path)
			if err != nil {
				return fmt.Errorf("hashing %s: %w", c.Path, err)
			}

			c.Hash = hash

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return candidates, nil
}

// HashFile returns the hex SHA-1 of the file at p.
func HashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha1.New() //nolint:gosec // provider content hash.
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
