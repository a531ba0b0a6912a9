package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// backends returns one store of each backend type for shared tests.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := NewFileStore(filepath.Join(t.TempDir(), "records"))
	if err != nil {
		t.Fatalf("create file store: %v", err)
	}

	ss, err := NewSQLiteStore(filepath.Join(t.TempDir(), "onboarding.db"))
	if err != nil {
		t.Fatalf("create sqlite store: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	return map[string]Store{"file": fs, "sqlite": ss}
}

func TestLoad_FreshRecord(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec, err := s.Load(context.Background(), "user-1")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if rec.Phase != 1 {
				t.Errorf("expected fresh record at phase 1, got %d", rec.Phase)
			}
			if rec.Revision != 0 {
				t.Errorf("expected revision 0, got %d", rec.Revision)
			}
			if rec.Completed {
				t.Error("fresh record should not be completed")
			}
		})
	}
}

func TestApply_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			m := Mutation{
				SetPhaseData: map[string]json.RawMessage{
					"assessment": json.RawMessage(`{"fitness_level":"beginner"}`),
				},
				AdvanceTo: 2,
				AppendTurns: []Turn{
					{Role: "user", Text: "I'm new to this", Phase: 1, Timestamp: time.Now().UTC()},
					{Role: "assistant", Text: "Welcome!", Phase: 1, Timestamp: time.Now().UTC()},
				},
			}
			rec, err := s.Apply(ctx, "user-1", 0, m)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if rec.Phase != 2 || rec.Revision != 1 {
				t.Errorf("expected phase 2 rev 1, got phase %d rev %d", rec.Phase, rec.Revision)
			}

			loaded, err := s.Load(ctx, "user-1")
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if loaded.Phase != 2 || loaded.Revision != 1 {
				t.Errorf("reload mismatch: phase %d rev %d", loaded.Phase, loaded.Revision)
			}
			if string(loaded.PhaseData["assessment"]) != `{"fitness_level":"beginner"}` {
				t.Errorf("phase data not persisted: %s", loaded.PhaseData["assessment"])
			}
			if len(loaded.Conversation) != 2 {
				t.Fatalf("expected 2 turns, got %d", len(loaded.Conversation))
			}
			if loaded.Conversation[0].Role != "user" || loaded.Conversation[1].Role != "assistant" {
				t.Errorf("turn order not preserved: %+v", loaded.Conversation)
			}
		})
	}
}

func TestApply_StaleRevisionConflicts(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.Apply(ctx, "user-1", 0, Mutation{AdvanceTo: 2}); err != nil {
				t.Fatalf("first apply: %v", err)
			}

			// Second writer still holds revision 0.
			_, err := s.Apply(ctx, "user-1", 0, Mutation{AdvanceTo: 3})
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}

			// The conflicting write must not have landed.
			rec, err := s.Load(ctx, "user-1")
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if rec.Phase != 2 || rec.Revision != 1 {
				t.Errorf("record changed by conflicting write: phase %d rev %d", rec.Phase, rec.Revision)
			}
		})
	}
}

func TestApply_PhaseCannotRegress(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec, err := s.Apply(ctx, "user-1", 0, Mutation{AdvanceTo: 3})
			if err != nil {
				t.Fatalf("apply: %v", err)
			}

			if _, err := s.Apply(ctx, "user-1", rec.Revision, Mutation{AdvanceTo: 2}); err == nil {
				t.Error("expected error advancing backwards")
			}
		})
	}
}

func TestApply_PendingLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			draft := json.RawMessage(`{"days":["mon","wed"]}`)
			rec, err := s.Apply(ctx, "user-1", 0, Mutation{
				SetPending: map[string]json.RawMessage{"workout": draft},
			})
			if err != nil {
				t.Fatalf("set pending: %v", err)
			}
			if string(rec.Pending["workout"]) != string(draft) {
				t.Errorf("pending not stored: %s", rec.Pending["workout"])
			}

			rec, err = s.Apply(ctx, "user-1", rec.Revision, Mutation{
				SetPhaseData: map[string]json.RawMessage{"workout_planning": draft},
				ClearPending: []string{"workout"},
			})
			if err != nil {
				t.Fatalf("commit pending: %v", err)
			}
			if _, ok := rec.Pending["workout"]; ok {
				t.Error("pending entry should be cleared after commit")
			}

			loaded, _ := s.Load(ctx, "user-1")
			if _, ok := loaded.Pending["workout"]; ok {
				t.Error("cleared pending entry persisted")
			}
		})
	}
}

func TestApply_UsersAreIndependent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.Apply(ctx, "alice", 0, Mutation{AdvanceTo: 4}); err != nil {
				t.Fatalf("apply alice: %v", err)
			}

			bob, err := s.Load(ctx, "bob")
			if err != nil {
				t.Fatalf("load bob: %v", err)
			}
			if bob.Phase != 1 || bob.Revision != 0 {
				t.Errorf("bob affected by alice's writes: %+v", bob)
			}
		})
	}
}

func TestRecord_Clone(t *testing.T) {
	rec := NewRecord("user-1")
	rec.PhaseData = map[string]json.RawMessage{"goals": json.RawMessage(`{"a":1}`)}
	rec.Conversation = []Turn{{Role: "user", Text: "hi", Phase: 1}}

	clone := rec.Clone()
	clone.PhaseData["goals"] = json.RawMessage(`{"a":2}`)
	clone.Conversation[0].Text = "changed"

	if string(rec.PhaseData["goals"]) != `{"a":1}` {
		t.Error("clone shares phase data with original")
	}
	if rec.Conversation[0].Text != "hi" {
		t.Error("clone shares conversation with original")
	}
}
