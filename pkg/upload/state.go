package upload

import (
	"fmt"

	"github.com/ethpandaops/artifactoor/pkg/objstore"
)

// State is a step of the upload pipeline.
type State int

const (
	StateGetAuth State = iota
	StateListExisting
	StateCheckDedup
	StateGetUploadURL
	StateUploadAll
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateGetAuth:      "get_auth",
	StateListExisting: "list_existing",
	StateCheckDedup:   "check_dedup",
	StateGetUploadURL: "get_upload_url",
	StateUploadAll:    "upload_all",
	StateDone:         "done",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is what a step reported: the provider error, if any, and how many
// candidates still need a transfer.
type Outcome struct {
	Err     *objstore.Error
	Pending int
}

// Decision is the policy's answer to an Outcome.
type Decision struct {
	// Next is the state to enter.
	Next State
	// Retry marks the decision as consuming one unit of the retry budget.
	Retry bool
	// Backoff asks for the fixed retry delay before entering Next.
	Backoff bool
	// Err is set when Next is StateFailed.
	Err error
}

func advance(next State) Decision {
	return Decision{Next: next}
}

func retry(next State) Decision {
	return Decision{Next: next, Retry: true}
}

func retryAfterBackoff(next State) Decision {
	return Decision{Next: next, Retry: true, Backoff: true}
}

func fail(err error) Decision {
	return Decision{Next: StateFailed, Err: err}
}

// Transition is the retry policy of the pipeline. It performs no I/O.
func Transition(state State, out Outcome) Decision {
	if out.Err == nil {
		return onSuccess(state, out.Pending)
	}

	env := out.Err
	kind := env.Kind()

	switch state {
	case StateGetAuth:
		switch {
		case kind == objstore.KindTransport:
			return retry(StateGetAuth)
		case kind == objstore.KindBadRequest:
			return fail(terminal(ErrBadRequest, env))
		case kind.IsAuth():
			return fail(terminal(ErrAuthDenied, env))
		case kind == objstore.KindServiceUnavailable:
			return retryAfterBackoff(StateGetAuth)
		}

	case StateListExisting:
		switch {
		case kind == objstore.KindTransport:
			return retry(StateListExisting)
		case kind == objstore.KindBadRequest:
			return fail(terminal(ErrBadRequest, env))
		case kind.IsAuth():
			return retry(StateGetAuth)
		case kind == objstore.KindServiceUnavailable:
			return retryAfterBackoff(StateListExisting)
		}

	case StateGetUploadURL:
		switch {
		case kind == objstore.KindTransport:
			return retry(StateGetUploadURL)
		case kind == objstore.KindBadRequest:
			return fail(terminal(ErrBadRequest, env))
		case kind.IsAuth():
			return retry(StateGetAuth)
		case kind == objstore.KindServiceUnavailable:
			return retryAfterBackoff(StateGetAuth)
		}

	case StateUploadAll:
		switch kind {
		case objstore.KindTransport:
			return retry(StateGetUploadURL)
		case objstore.KindBadRequest:
			return fail(terminal(ErrBadRequest, env))
		case objstore.KindUnauthorized:
			return fail(terminal(ErrCapabilityInsufficient, env))
		case objstore.KindBadAuthToken, objstore.KindExpiredAuthToken:
			return retry(StateGetUploadURL)
		case objstore.KindCapExceeded:
			return fail(terminal(ErrCapExceeded, env))
		case objstore.KindRequestTimeout:
			return retryAfterBackoff(StateUploadAll)
		case objstore.KindServiceUnavailable:
			return retry(StateGetUploadURL)
		case objstore.KindAuthRejected, objstore.KindUnexpected:
			// No transition.
		}
	}

	return fail(&InternalError{State: state, Envelope: env})
}

func onSuccess(state State, pending int) Decision {
	switch state {
	case StateGetAuth:
		return advance(StateListExisting)
	case StateListExisting:
		return advance(StateCheckDedup)
	case StateCheckDedup:
		if pending == 0 {
			return advance(StateDone)
		}

		return advance(StateGetUploadURL)
	case StateGetUploadURL:
		return advance(StateUploadAll)
	case StateUploadAll:
		if pending == 0 {
			return advance(StateDone)
		}
	case StateDone:
		return advance(StateDone)
	}

	return fail(&InternalError{State: state})
}
