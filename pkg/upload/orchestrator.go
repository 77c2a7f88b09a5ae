package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/artifactoor/pkg/objstore"
	"github.com/sirupsen/logrus"
)

// Provider is the set of provider calls the pipeline performs.
type Provider interface {
	Prober
	Transferer

	Authorize(ctx context.Context, creds objstore.Credentials) (*objstore.Session, error)
	ListObjects(
		ctx context.Context, session *objstore.Session, prefix string,
	) ([]objstore.Object, error)
	GetUploadURL(ctx context.Context, session *objstore.Session) (*objstore.UploadLease, error)
}

// Ensure interface compliance.
var _ Provider = (*objstore.Client)(nil)

// Report summarises a finished run.
type Report struct {
	Attempts     int
	Uploaded     int
	Deduplicated int
}

// Orchestrator sequences the pipeline steps and applies Transition.
type Orchestrator struct {
	log         logrus.FieldLogger
	provider    Provider
	dedup       *DedupChecker
	executor    *Executor
	creds       objstore.Credentials
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Credentials    objstore.Credentials
	MaxAttempts    int
	RetryBackoff   time.Duration
	ProbeRateLimit float64
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	log logrus.FieldLogger, provider Provider, opts OrchestratorOptions,
) *Orchestrator {
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Orchestrator{
		log:         log.WithField("component", "orchestrator"),
		provider:    provider,
		dedup:       NewDedupChecker(log, provider, opts.ProbeRateLimit),
		executor:    NewExecutor(log, provider),
		creds:       opts.Credentials,
		maxAttempts: maxAttempts,
		backoff:     opts.RetryBackoff,
		sleep:       sleepContext,
	}
}

// run holds the mutable state of one pipeline invocation.
type run struct {
	prefix     string
	candidates []*Candidate
	session    *objstore.Session
	lease      *objstore.UploadLease
	listing    []objstore.Object
	attempts   int
}

func (r *run) report() *Report {
	report := &Report{Attempts: r.attempts}

	for _, c := range r.candidates {
		switch {
		case c.Result != nil:
			report.Uploaded++
		case c.AlreadyUploaded:
			report.Deduplicated++
		}
	}

	return report
}

func (r *run) pending() int {
	var n int

	for _, c := range r.candidates {
		if !c.Done() {
			n++
		}
	}

	return n
}

// Run drives candidates through the pipeline until every one is accounted
// for or the run fails. Candidates are updated in place. The report is
// returned on failure too, counting the attempts spent and the candidates
// accounted for so far.
func (o *Orchestrator) Run(
	ctx context.Context, prefix string, candidates []*Candidate,
) (*Report, error) {
	r := &run{
		prefix:     prefix,
		candidates: candidates,
	}

	state := StateGetAuth

	for state != StateDone {
		log := o.log.WithFields(logrus.Fields{
			"state":   state.String(),
			"attempt": r.attempts,
		})

		log.Info("Entering state")

		env, err := o.step(ctx, r, state)

		// A cancelled call surfaces as a transport failure; it must not be
		// retried or counted.
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.WithError(ctxErr).Warn("Upload cancelled")

			return r.report(), fmt.Errorf("upload cancelled: %w", ctxErr)
		}

		if err != nil {
			log.WithError(err).Error("Step failed")

			return r.report(), err
		}

		decision := Transition(state, Outcome{Err: env, Pending: r.pending()})

		if env != nil {
			log.WithFields(logrus.Fields{
				"status": env.Status,
				"code":   env.Code,
				"next":   decision.Next.String(),
			}).WithError(env).Warn("Provider call failed")
		}

		if decision.Err != nil {
			return r.report(), decision.Err
		}

		if decision.Retry {
			r.attempts++

			if r.attempts >= o.maxAttempts {
				return r.report(), fmt.Errorf("%w after %d attempts: %w",
					ErrRetriesExhausted, r.attempts, env)
			}

			if decision.Backoff {
				if err := o.sleep(ctx, o.backoff); err != nil {
					return r.report(), fmt.Errorf("upload cancelled: %w", err)
				}
			}
		}

		o.discardRejected(r, state, decision.Next)
		state = decision.Next
	}

	report := r.report()
	if report.Uploaded+report.Deduplicated != len(r.candidates) {
		return report, &InternalError{State: StateDone}
	}

	o.log.WithFields(logrus.Fields{
		"uploaded":     report.Uploaded,
		"deduplicated": report.Deduplicated,
		"attempts":     report.Attempts,
	}).Info("Upload pipeline finished")

	return report, nil
}

// discardRejected drops credentials that the transition implies are no
// longer good: a return to GetAuth invalidates the session and lease, a
// return from UploadAll to GetUploadURL drops the lease.
func (o *Orchestrator) discardRejected(r *run, from, to State) {
	switch {
	case to == StateGetAuth && from != StateGetAuth:
		if r.session != nil {
			r.session.Invalidate()
		}

		r.lease = nil
	case to == StateGetUploadURL && from == StateUploadAll:
		r.lease = nil
	}
}

// step performs the I/O of state. A provider failure is returned as the
// envelope; any other error is terminal.
func (o *Orchestrator) step(ctx context.Context, r *run, state State) (*objstore.Error, error) {
	switch state {
	case StateGetAuth:
		if !r.session.Stale() {
			return nil, nil
		}

		session, err := o.provider.Authorize(ctx, o.creds)
		if err != nil {
			return envelope(err)
		}

		r.session = session

	case StateListExisting:
		listing, err := o.provider.ListObjects(ctx, r.session, r.prefix)
		if err != nil {
			return envelope(err)
		}

		r.listing = listing

	case StateCheckDedup:
		o.dedup.Check(ctx, r.session, r.candidates, r.listing)
		r.listing = nil

	case StateGetUploadURL:
		lease, err := o.provider.GetUploadURL(ctx, r.session)
		if err != nil {
			return envelope(err)
		}

		r.lease = lease

	case StateUploadAll:
		if r.lease == nil {
			return nil, &InternalError{State: state}
		}

		for _, c := range r.candidates {
			if c.Done() {
				continue
			}

			info, err := o.executor.Upload(ctx, r.lease, c)
			if err != nil {
				return envelope(err)
			}

			c.Result = info
			c.URL = r.session.PublicURL(c.Key)
		}

	default:
		return nil, &InternalError{State: state}
	}

	return nil, nil
}

// envelope separates provider failures from local ones.
func envelope(err error) (*objstore.Error, error) {
	var env *objstore.Error
	if errors.As(err, &env) {
		return env, nil
	}

	return nil, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
