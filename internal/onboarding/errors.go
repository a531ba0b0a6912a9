package onboarding

import (
	"errors"
	"fmt"
)

// ErrTransient marks a turn that failed on an external dependency after
// retries. Nothing was persisted; the caller may resubmit the same turn.
var ErrTransient = errors.New("temporary failure, please retry")

// ErrNoProposal is returned when a commit tool arrives with no pending
// plan proposal for the phase. This indicates a broken call sequence,
// not a user mistake.
var ErrNoProposal = errors.New("no plan proposal to act on")

// ErrNotApproved is returned when a commit is attempted on a proposal
// that is not in the approved state. Commit callers are expected to
// approve first, so this is an internal consistency violation.
var ErrNotApproved = errors.New("plan proposal is not approved")

// ErrPhaseOutOfRange is returned when a record's phase does not map to
// any configured onboarding phase.
var ErrPhaseOutOfRange = errors.New("phase out of range")

// ValidationError describes tool arguments that failed schema
// validation. It is fed back to the model as a tool result so the
// conversation can recover, never surfaced to the user as a failure.
type ValidationError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("%s: field %q: %s", e.Tool, e.Field, e.Reason)
}
