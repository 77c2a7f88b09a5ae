package upload

import (
	"context"

	"github.com/ethpandaops/artifactoor/pkg/objstore"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Prober checks that a public URL resolves.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// DedupChecker marks candidates whose content already exists remotely.
type DedupChecker struct {
	log     logrus.FieldLogger
	prober  Prober
	limiter *rate.Limiter
}

// NewDedupChecker creates a DedupChecker. probesPerSecond paces reachability
// probes; zero leaves them unpaced.
func NewDedupChecker(
	log logrus.FieldLogger, prober Prober, probesPerSecond float64,
) *DedupChecker {
	d := &DedupChecker{
		log:    log.WithField("component", "dedup"),
		prober: prober,
	}

	if probesPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(probesPerSecond), 1)
	}

	return d
}

// Check resolves each candidate's public URL and marks it already uploaded
// when the listing holds the same content hash at its key and the URL is
// reachable. It never fails: probe errors leave the candidate pending.
func (d *DedupChecker) Check(
	ctx context.Context,
	session *objstore.Session,
	candidates []*Candidate,
	listing []objstore.Object,
) {
	remote := make(map[string]string, len(listing))
	for _, obj := range listing {
		remote[obj.FileName] = obj.ContentHash
	}

	for _, c := range candidates {
		c.URL = session.PublicURL(c.Key)

		if c.Done() {
			continue
		}

		log := d.log.WithField("key", c.Key)

		hash, ok := remote[c.Key]
		if !ok {
			log.Debug("No remote object")

			continue
		}

		if hash != c.Hash {
			log.WithFields(logrus.Fields{
				"local":  c.Hash,
				"remote": hash,
			}).Debug("Remote object differs, will overwrite")

			continue
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				log.WithError(err).Debug("Probe skipped")

				continue
			}
		}

		if err := d.prober.Probe(ctx, c.URL); err != nil {
			log.WithError(err).Debug("Remote object not reachable")

			continue
		}

		c.AlreadyUploaded = true

		log.Info("Skipping upload, identical object exists")
	}
}
