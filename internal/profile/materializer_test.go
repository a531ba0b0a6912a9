package profile

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/openclaw/coachd/internal/store"
)

func newTestMaterializer(t *testing.T) *Materializer {
	t.Helper()
	m, err := NewMaterializer(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("create materializer: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func finishedRecord(userID string) *store.Record {
	rec := store.NewRecord(userID)
	rec.Phase = 6
	rec.PhaseData = make(map[string]json.RawMessage)
	for _, section := range Sections {
		rec.PhaseData[section] = json.RawMessage(`{"ok":true}`)
	}
	return rec
}

func TestMaterialize_CreatesProfile(t *testing.T) {
	m := newTestMaterializer(t)
	ctx := context.Background()

	id, err := m.Materialize(ctx, finishedRecord("user-1"))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if id == "" {
		t.Fatal("expected a profile ID")
	}

	p, err := m.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p == nil || p.ID != id {
		t.Fatalf("profile not loadable: %+v", p)
	}
	if p.Version != Version {
		t.Errorf("expected version %d, got %d", Version, p.Version)
	}
	if !p.Locked {
		t.Error("materialized profile must be locked")
	}
	if len(p.Sections) != len(Sections) {
		t.Errorf("expected %d sections, got %d", len(Sections), len(p.Sections))
	}
	if string(p.Sections["goals"]) != `{"ok":true}` {
		t.Errorf("section data mismatch: %s", p.Sections["goals"])
	}
}

func TestMaterialize_Idempotent(t *testing.T) {
	m := newTestMaterializer(t)
	ctx := context.Background()
	rec := finishedRecord("user-1")

	first, err := m.Materialize(ctx, rec)
	if err != nil {
		t.Fatalf("first materialize: %v", err)
	}
	second, err := m.Materialize(ctx, rec)
	if err != nil {
		t.Fatalf("second materialize: %v", err)
	}
	if first != second {
		t.Errorf("rerun created a new profile: %q vs %q", first, second)
	}
}

func TestMaterialize_MissingPhaseData(t *testing.T) {
	m := newTestMaterializer(t)

	rec := finishedRecord("user-1")
	delete(rec.PhaseData, "diet_planning")

	_, err := m.Materialize(context.Background(), rec)
	var me *MaterializationError
	if !errors.As(err, &me) {
		t.Fatalf("expected MaterializationError, got %v", err)
	}
	if len(me.Missing) != 1 || me.Missing[0] != "diet_planning" {
		t.Errorf("unexpected missing list: %v", me.Missing)
	}

	// Nothing partial was written.
	p, _ := m.Load(context.Background(), "user-1")
	if p != nil {
		t.Error("partial profile was persisted")
	}
}

func TestLoad_NoProfile(t *testing.T) {
	m := newTestMaterializer(t)
	p, err := m.Load(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil for unknown user, got %+v", p)
	}
}

func TestMaterialize_UsersGetDistinctProfiles(t *testing.T) {
	m := newTestMaterializer(t)
	ctx := context.Background()

	a, err := m.Materialize(ctx, finishedRecord("alice"))
	if err != nil {
		t.Fatalf("materialize alice: %v", err)
	}
	b, err := m.Materialize(ctx, finishedRecord("bob"))
	if err != nil {
		t.Fatalf("materialize bob: %v", err)
	}
	if a == b {
		t.Error("distinct users share a profile ID")
	}
}
