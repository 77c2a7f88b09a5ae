package upload

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/artifactoor/pkg/objstore"
)

// Terminal outcomes of a run. Errors returned by Upload wrap one of these
// together with the provider envelope that caused it.
var (
	ErrBadRequest             = errors.New("provider rejected the request as malformed")
	ErrAuthDenied             = errors.New("authorization denied")
	ErrCapabilityInsufficient = errors.New("key lacks the capability required for this operation")
	ErrCapExceeded            = errors.New("usage cap exceeded")
	ErrRetriesExhausted       = errors.New("exhausted upload attempts")
)

// Input validation errors, raised before any network activity.
var (
	ErrNoFiles       = errors.New("no files to upload")
	ErrFileTooLarge  = errors.New("file exceeds maximum upload size")
	ErrDuplicateKey  = errors.New("two files map to the same object key")
	ErrMissingSource = errors.New("file does not exist")
)

// InternalError reports a provider response that the state machine has no
// transition for. It signals a bug or a provider behaviour change rather
// than a transient failure.
type InternalError struct {
	State    State
	Envelope *objstore.Error
}

func (e *InternalError) Error() string {
	if e.Envelope == nil {
		return fmt.Sprintf("internal error: no transition out of state %s", e.State)
	}

	return fmt.Sprintf("internal error: unexpected provider response in state %s: %v",
		e.State, e.Envelope)
}

func (e *InternalError) Unwrap() error {
	if e.Envelope == nil {
		return nil
	}

	return e.Envelope
}

// UnsupportedContentTypeError is returned for files whose extension is not
// in the content type whitelist.
type UnsupportedContentTypeError struct {
	Path      string
	Extension string
}

func (e *UnsupportedContentTypeError) Error() string {
	ext := e.Extension
	if ext == "" {
		ext = "(none)"
	}

	return fmt.Sprintf("unsupported content type for %s: extension %s", e.Path, ext)
}

// terminal wraps a sentinel and the envelope that triggered it.
func terminal(sentinel error, env *objstore.Error) error {
	return fmt.Errorf("%w: %w", sentinel, env)
}
