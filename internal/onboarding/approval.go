package onboarding

import (
	"encoding/json"
	"fmt"
)

// ApprovalState tracks a plan proposal through review.
type ApprovalState string

const (
	StateAwaitingPreferences ApprovalState = "awaiting_preferences"
	StateProposed            ApprovalState = "proposed"
	StateModified            ApprovalState = "modified"
	StateApproved            ApprovalState = "approved"
	StateCommitted           ApprovalState = "committed"
)

// PlanProposal is a draft plan pending user review. It lives in the
// record's pending area, keyed by plan kind, and only reaches
// phase_data once committed.
type PlanProposal struct {
	Kind        string          `json:"kind"`
	Draft       json.RawMessage `json:"draft"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
	State       ApprovalState   `json:"state"`
	Revision    int             `json:"revision"`
}

// Propose creates revision 1 of a plan proposal.
func Propose(kind string, draft json.RawMessage) *PlanProposal {
	return &PlanProposal{
		Kind:     kind,
		Draft:    draft,
		State:    StateProposed,
		Revision: 1,
	}
}

// Modify replaces the draft with a revised one and bumps the proposal
// revision. Valid from proposed or modified.
func (p *PlanProposal) Modify(draft json.RawMessage) error {
	if p.State != StateProposed && p.State != StateModified {
		return fmt.Errorf("cannot modify proposal in state %q", p.State)
	}
	p.Draft = draft
	p.State = StateModified
	p.Revision++
	return nil
}

// Approve marks the current draft as accepted by the user. Valid from
// proposed or modified.
func (p *PlanProposal) Approve() error {
	if p.State != StateProposed && p.State != StateModified {
		return fmt.Errorf("cannot approve proposal in state %q", p.State)
	}
	p.State = StateApproved
	return nil
}

// Commit finalizes an approved proposal. Committing anything else is a
// sequencing bug in the caller, reported as ErrNotApproved.
func (p *PlanProposal) Commit() error {
	if p.State != StateApproved {
		return fmt.Errorf("commit from state %q: %w", p.State, ErrNotApproved)
	}
	p.State = StateCommitted
	return nil
}

// decodeProposal parses a stored pending entry.
func decodeProposal(raw json.RawMessage) (*PlanProposal, error) {
	var p PlanProposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse plan proposal: %w", err)
	}
	return &p, nil
}

// encodeProposal serializes a proposal for the pending area.
func encodeProposal(p *PlanProposal) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal plan proposal: %w", err)
	}
	return data, nil
}
