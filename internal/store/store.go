// Package store persists onboarding records with optimistic concurrency.
//
// Every record carries a revision that increments on each successful
// write. Writers submit a Mutation along with the revision they read;
// if the stored revision has moved on, the write fails with ErrConflict
// and the caller reloads and retries.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrConflict is returned when a mutation is applied against a stale
// revision.
var ErrConflict = errors.New("record revision conflict")

// Turn is a single conversation entry.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Phase     int       `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the durable onboarding state for one user.
type Record struct {
	UserID       string                     `json:"user_id"`
	Phase        int                        `json:"phase"`
	PhaseData    map[string]json.RawMessage `json:"phase_data,omitempty"`
	Pending      map[string]json.RawMessage `json:"pending,omitempty"`
	Conversation []Turn                     `json:"conversation,omitempty"`
	Completed    bool                       `json:"completed"`
	Revision     int64                      `json:"revision"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// Mutation describes a set of changes applied atomically to a record.
// Zero-valued fields are no-ops.
type Mutation struct {
	SetPhaseData  map[string]json.RawMessage
	SetPending    map[string]json.RawMessage
	ClearPending  []string
	AdvanceTo     int
	AppendTurns   []Turn
	MarkCompleted bool
}

// Store persists onboarding records.
type Store interface {
	// Load returns the record for userID, creating a fresh phase-1
	// record (revision 0) if none exists yet.
	Load(ctx context.Context, userID string) (*Record, error)

	// Apply applies m to the record atomically, but only if the stored
	// revision equals revision. On success it returns the updated
	// record with its new revision. A stale revision returns
	// ErrConflict without changing the record.
	Apply(ctx context.Context, userID string, revision int64, m Mutation) (*Record, error)
}

// NewRecord creates a fresh record at phase 1.
func NewRecord(userID string) *Record {
	now := time.Now().UTC()
	return &Record{
		UserID:    userID,
		Phase:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.PhaseData != nil {
		c.PhaseData = make(map[string]json.RawMessage, len(r.PhaseData))
		for k, v := range r.PhaseData {
			c.PhaseData[k] = append(json.RawMessage(nil), v...)
		}
	}
	if r.Pending != nil {
		c.Pending = make(map[string]json.RawMessage, len(r.Pending))
		for k, v := range r.Pending {
			c.Pending[k] = append(json.RawMessage(nil), v...)
		}
	}
	if r.Conversation != nil {
		c.Conversation = append([]Turn(nil), r.Conversation...)
	}
	return &c
}

// applyMutation applies m to r in place and bumps the revision. Both
// backends funnel writes through here so mutation semantics stay
// identical across them.
func applyMutation(r *Record, m Mutation) error {
	if m.AdvanceTo != 0 && m.AdvanceTo < r.Phase {
		return fmt.Errorf("phase cannot regress from %d to %d", r.Phase, m.AdvanceTo)
	}

	if len(m.SetPhaseData) > 0 && r.PhaseData == nil {
		r.PhaseData = make(map[string]json.RawMessage)
	}
	for k, v := range m.SetPhaseData {
		r.PhaseData[k] = append(json.RawMessage(nil), v...)
	}

	if len(m.SetPending) > 0 && r.Pending == nil {
		r.Pending = make(map[string]json.RawMessage)
	}
	for k, v := range m.SetPending {
		r.Pending[k] = append(json.RawMessage(nil), v...)
	}
	for _, k := range m.ClearPending {
		delete(r.Pending, k)
	}

	if m.AdvanceTo != 0 {
		r.Phase = m.AdvanceTo
	}
	r.Conversation = append(r.Conversation, m.AppendTurns...)
	if m.MarkCompleted {
		r.Completed = true
	}

	r.Revision++
	r.UpdatedAt = time.Now().UTC()
	return nil
}
