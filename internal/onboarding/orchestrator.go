package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openclaw/coachd/internal/logging"
	"github.com/openclaw/coachd/internal/store"
)

// completedReply is returned for any turn submitted after onboarding
// has finished. Completed records are never mutated.
const completedReply = "You're all set! Your profile is ready and your coach will take it from here."

// Materializer turns a finished onboarding record into a user profile.
// Implementations must be idempotent per user.
type Materializer interface {
	Materialize(ctx context.Context, rec *store.Record) (profileID string, err error)
}

// TurnResult is what a transport returns to the user for one turn.
type TurnResult struct {
	Reply        string
	Phase        int
	PhaseChanged bool
	Completed    bool
}

// Orchestrator serializes turns per user, runs the agent, and applies
// the staged mutation with optimistic-concurrency retries.
type Orchestrator struct {
	store        store.Store
	agent        *Agent
	materializer Materializer
	logger       *logging.Logger
	applyRetries int

	// OnProfileCreated, if set, is invoked asynchronously after a
	// profile is materialized. Failures in the callback do not affect
	// onboarding.
	OnProfileCreated func(userID, profileID string)

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewOrchestrator wires the orchestrator together. applyRetries bounds
// conflict retries on Apply; values below 1 are raised to 1.
func NewOrchestrator(s store.Store, agent *Agent, m Materializer, applyRetries int, logger *logging.Logger) *Orchestrator {
	if applyRetries < 1 {
		applyRetries = 1
	}
	if logger == nil {
		logger = logging.New()
	}
	return &Orchestrator{
		store:        s,
		agent:        agent,
		materializer: m,
		logger:       logger.WithComponent("orchestrator"),
		applyRetries: applyRetries,
		userLocks:    make(map[string]*sync.Mutex),
	}
}

// lockUser returns the mutex serializing turns for one user. Different
// users proceed concurrently.
func (o *Orchestrator) lockUser(userID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		o.userLocks[userID] = l
	}
	return l
}

// SubmitTurn processes one user message end to end: load the record,
// run the phase agent, apply the staged mutation, and materialize the
// profile when the final phase completes. On a transient failure the
// whole turn is retried once internally; if that also fails, the error
// wraps ErrTransient and nothing was persisted.
func (o *Orchestrator) SubmitTurn(ctx context.Context, userID, text string) (*TurnResult, error) {
	lock := o.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	rec, err := o.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load record for %s: %w", userID, err)
	}
	o.logger.TurnStart(userID, rec.Phase)

	if rec.Completed {
		o.logger.TurnComplete(userID, rec.Phase, time.Since(start), "already_completed")
		return &TurnResult{Reply: completedReply, Phase: rec.Phase, Completed: true}, nil
	}

	// All phases done but a previous materialization attempt failed.
	// Retry it before any new conversation.
	if rec.Phase > PhaseCount {
		res, err := o.finalize(ctx, rec)
		if err != nil {
			o.logger.TurnComplete(userID, rec.Phase, time.Since(start), "materialize_failed")
			return nil, err
		}
		o.logger.TurnComplete(userID, rec.Phase, time.Since(start), "completed")
		return res, nil
	}

	outcome, err := o.runAgent(ctx, rec, text)
	if err != nil {
		o.logger.TurnComplete(userID, rec.Phase, time.Since(start), "failed")
		return nil, err
	}

	mut := outcome.Mutation
	if outcome.PhaseComplete {
		mut.AdvanceTo = rec.Phase + 1
	}

	newRec, err := o.apply(ctx, rec, mut)
	if err != nil {
		return nil, err
	}
	if outcome.PhaseComplete {
		o.logger.PhaseAdvanced(userID, rec.Phase, newRec.Phase)
	}

	result := &TurnResult{
		Reply:        outcome.Reply,
		Phase:        newRec.Phase,
		PhaseChanged: newRec.Phase != rec.Phase,
	}

	if newRec.Phase > PhaseCount {
		final, err := o.finalize(ctx, newRec)
		if err != nil {
			// The turn itself is persisted; the next submission
			// retries materialization.
			o.logger.TurnComplete(userID, newRec.Phase, time.Since(start), "materialize_failed")
			return nil, err
		}
		result.Completed = final.Completed
	}

	o.logger.TurnComplete(userID, newRec.Phase, time.Since(start), "ok")
	return result, nil
}

// runAgent runs the agent once, retrying a single time on what looks
// like an external failure. Internal consistency errors never retry.
func (o *Orchestrator) runAgent(ctx context.Context, rec *store.Record, text string) (*Outcome, error) {
	outcome, err := o.agent.HandleTurn(ctx, rec, text)
	if err == nil {
		return outcome, nil
	}
	if !isRetryableTurnError(err) {
		return nil, err
	}

	o.logger.Warn("retrying turn after external failure", map[string]interface{}{
		"user":  rec.UserID,
		"error": err.Error(),
	})
	outcome, err = o.agent.HandleTurn(ctx, rec, text)
	if err == nil {
		return outcome, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrTransient, err)
}

func isRetryableTurnError(err error) bool {
	if errors.Is(err, ErrPhaseOutOfRange) || errors.Is(err, ErrNotApproved) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ve *ValidationError
	return !errors.As(err, &ve)
}

// apply writes the mutation with bounded conflict retries. A conflict
// means an external writer touched the record mid-turn; the retry
// reloads and reapplies only if the phase is unchanged, since a moved
// phase invalidates everything the agent just did.
func (o *Orchestrator) apply(ctx context.Context, rec *store.Record, m store.Mutation) (*store.Record, error) {
	revision := rec.Revision
	for attempt := 1; ; attempt++ {
		newRec, err := o.store.Apply(ctx, rec.UserID, revision, m)
		if err == nil {
			return newRec, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("apply turn for %s: %w", rec.UserID, err)
		}
		if attempt >= o.applyRetries {
			// Conflict retries exhausted. Nothing was written; the
			// caller can resend the same message.
			return nil, fmt.Errorf("%w: apply turn for %s: %v", ErrTransient, rec.UserID, err)
		}

		o.logger.StoreConflict(rec.UserID, attempt)
		fresh, loadErr := o.store.Load(ctx, rec.UserID)
		if loadErr != nil {
			return nil, fmt.Errorf("reload after conflict: %w", loadErr)
		}
		if fresh.Phase != rec.Phase || fresh.Completed {
			return nil, fmt.Errorf("%w: record for %s changed during turn", ErrTransient, rec.UserID)
		}
		revision = fresh.Revision
	}
}

// finalize materializes the profile and marks the record completed.
// Completion is only recorded after materialization succeeds, so a
// crash in between leaves the record retryable, and the materializer's
// idempotency absorbs the rerun.
func (o *Orchestrator) finalize(ctx context.Context, rec *store.Record) (*TurnResult, error) {
	profileID, err := o.materializer.Materialize(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: materialize profile: %v", ErrTransient, err)
	}
	o.logger.ProfileCreated(rec.UserID, profileID)

	if _, err := o.apply(ctx, rec, store.Mutation{MarkCompleted: true}); err != nil {
		return nil, err
	}

	if o.OnProfileCreated != nil {
		go o.OnProfileCreated(rec.UserID, profileID)
	}

	return &TurnResult{Reply: completedReply, Phase: rec.Phase, Completed: true}, nil
}
