package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/openclaw/coachd/internal/llm"
	"github.com/openclaw/coachd/internal/store"
)

type stubMaterializer struct {
	mu       sync.Mutex
	calls    int
	failures int // fail this many calls before succeeding
	id       string
}

func (s *stubMaterializer) Materialize(ctx context.Context, rec *store.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return "", errors.New("database is locked")
	}
	if s.id == "" {
		s.id = "profile-1"
	}
	return s.id, nil
}

func newTestOrchestrator(t *testing.T, provider llm.Provider, planner PlanGenerator, m Materializer) (*Orchestrator, store.Store) {
	t.Helper()
	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "records"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	agent := NewAgent("Riley", provider, planner, 0, quietLogger())
	return NewOrchestrator(fs, agent, m, 3, quietLogger()), fs
}

// seedRecord writes a record directly through the store.
func seedRecord(t *testing.T, s store.Store, userID string, m store.Mutation) *store.Record {
	t.Helper()
	rec, err := s.Apply(context.Background(), userID, 0, m)
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec
}

func allPhaseData(upto Phase) map[string]json.RawMessage {
	data := make(map[string]json.RawMessage)
	for p := PhaseAssessment; p <= upto; p++ {
		data[p.Name()] = json.RawMessage(fmt.Sprintf(`{"done":%d}`, int(p)))
	}
	return data
}

func TestSubmitTurn_PlainConversation(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.SetResponse("Welcome! How much training have you done before?")
	o, s := newTestOrchestrator(t, mock, &stubPlanner{}, &stubMaterializer{})

	res, err := o.SubmitTurn(context.Background(), "user-1", "hi, I'm new here")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Phase != 1 || res.PhaseChanged || res.Completed {
		t.Errorf("unexpected result: %+v", res)
	}

	rec, _ := s.Load(context.Background(), "user-1")
	if len(rec.Conversation) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(rec.Conversation))
	}
	if rec.Conversation[0].Text != "hi, I'm new here" {
		t.Errorf("user turn not persisted: %+v", rec.Conversation[0])
	}
}

func TestSubmitTurn_PhaseAdvances(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.QueueToolCall("tc1", "save_assessment", map[string]interface{}{
		"fitness_level":  "intermediate",
		"activity_level": "active",
	})
	mock.QueueResponse(&llm.ChatResponse{Content: "Assessment done, let's set some goals."})
	o, s := newTestOrchestrator(t, mock, &stubPlanner{}, &stubMaterializer{})

	res, err := o.SubmitTurn(context.Background(), "user-1", "intermediate, pretty active")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.PhaseChanged || res.Phase != 2 {
		t.Errorf("expected advance to phase 2, got %+v", res)
	}

	rec, _ := s.Load(context.Background(), "user-1")
	if rec.Phase != 2 {
		t.Errorf("phase not persisted: %d", rec.Phase)
	}
	if rec.PhaseData["assessment"] == nil {
		t.Error("assessment data not persisted")
	}
}

func TestSubmitTurn_CompletedRecordIsTerminal(t *testing.T) {
	mock := llm.NewMockProvider()
	o, s := newTestOrchestrator(t, mock, &stubPlanner{}, &stubMaterializer{})

	seeded := seedRecord(t, s, "user-1", store.Mutation{
		SetPhaseData:  allPhaseData(PhaseScheduling),
		AdvanceTo:     PhaseCount + 1,
		MarkCompleted: true,
	})

	res, err := o.SubmitTurn(context.Background(), "user-1", "hello again")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Completed {
		t.Error("expected completed result")
	}
	if len(mock.Requests()) != 0 {
		t.Error("completed record must not reach the model")
	}

	rec, _ := s.Load(context.Background(), "user-1")
	if rec.Revision != seeded.Revision {
		t.Error("completed record was mutated")
	}
}

func TestSubmitTurn_TransientFailureLeavesNoTrace(t *testing.T) {
	var calls int
	mock := llm.NewMockProvider()
	mock.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		return nil, errors.New("503 service unavailable")
	}
	o, s := newTestOrchestrator(t, mock, &stubPlanner{}, &stubMaterializer{})

	_, err := o.SubmitTurn(context.Background(), "user-1", "hi")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected one retry (2 calls), got %d", calls)
	}

	rec, _ := s.Load(context.Background(), "user-1")
	if rec.Revision != 0 || len(rec.Conversation) != 0 {
		t.Error("failed turn left persisted state")
	}
}

func TestSubmitTurn_RetrySucceeds(t *testing.T) {
	var calls int
	mock := llm.NewMockProvider()
	mock.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("rate limit exceeded")
		}
		return &llm.ChatResponse{Content: "back on track"}, nil
	}
	o, _ := newTestOrchestrator(t, mock, &stubPlanner{}, &stubMaterializer{})

	res, err := o.SubmitTurn(context.Background(), "user-1", "hi")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if res.Reply != "back on track" {
		t.Errorf("unexpected reply: %q", res.Reply)
	}
}

func TestSubmitTurn_FinalPhaseMaterializesProfile(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.QueueToolCall("tc1", "save_schedule", map[string]interface{}{
		"workout_days": []interface{}{"monday", "thursday"},
		"reminders":    true,
	})
	mock.QueueResponse(&llm.ChatResponse{Content: "All set!"})

	mat := &stubMaterializer{id: "profile-42"}
	o, s := newTestOrchestrator(t, mock, &stubPlanner{}, mat)

	created := make(chan string, 1)
	o.OnProfileCreated = func(userID, profileID string) { created <- profileID }

	seedRecord(t, s, "user-1", store.Mutation{
		SetPhaseData: allPhaseData(PhaseDietPlanning),
		AdvanceTo:    int(PhaseScheduling),
	})

	res, err := o.SubmitTurn(context.Background(), "user-1", "mondays and thursdays")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Completed {
		t.Error("expected completed result after final phase")
	}
	if mat.calls != 1 {
		t.Errorf("expected exactly one materialization, got %d", mat.calls)
	}

	select {
	case id := <-created:
		if id != "profile-42" {
			t.Errorf("callback got profile %q", id)
		}
	case <-time.After(time.Second):
		t.Error("OnProfileCreated was not invoked")
	}

	rec, _ := s.Load(context.Background(), "user-1")
	if !rec.Completed {
		t.Error("record not marked completed")
	}
}

func TestSubmitTurn_MaterializationRetriedNextTurn(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.QueueToolCall("tc1", "save_schedule", map[string]interface{}{
		"workout_days": []interface{}{"friday"},
	})
	mock.QueueResponse(&llm.ChatResponse{Content: "Done!"})

	mat := &stubMaterializer{failures: 1}
	o, s := newTestOrchestrator(t, mock, &stubPlanner{}, mat)

	seedRecord(t, s, "user-1", store.Mutation{
		SetPhaseData: allPhaseData(PhaseDietPlanning),
		AdvanceTo:    int(PhaseScheduling),
	})

	_, err := o.SubmitTurn(context.Background(), "user-1", "fridays")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient on materialization failure, got %v", err)
	}

	// The conversation is persisted and the record sits past the last
	// phase, not completed.
	rec, _ := s.Load(context.Background(), "user-1")
	if rec.Phase != PhaseCount+1 || rec.Completed {
		t.Fatalf("unexpected record state: phase %d completed %v", rec.Phase, rec.Completed)
	}

	// The next submission retries materialization without touching the
	// model.
	before := len(mock.Requests())
	res, err := o.SubmitTurn(context.Background(), "user-1", "am I done?")
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if !res.Completed {
		t.Error("expected completion on retry")
	}
	if len(mock.Requests()) != before {
		t.Error("materialization retry should not call the model")
	}
	if mat.calls != 2 {
		t.Errorf("expected 2 materialization attempts, got %d", mat.calls)
	}

	rec, _ = s.Load(context.Background(), "user-1")
	if !rec.Completed {
		t.Error("record not marked completed after retry")
	}
}

// conflictStore injects a conflict on the first Apply to simulate an
// external writer racing the turn.
type conflictStore struct {
	store.Store
	mu       sync.Mutex
	injected bool
}

func (c *conflictStore) Apply(ctx context.Context, userID string, revision int64, m store.Mutation) (*store.Record, error) {
	c.mu.Lock()
	inject := !c.injected
	c.injected = true
	c.mu.Unlock()
	if inject {
		return nil, store.ErrConflict
	}
	return c.Store.Apply(ctx, userID, revision, m)
}

func TestSubmitTurn_ConflictRetries(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.SetResponse("noted")

	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "records"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	cs := &conflictStore{Store: fs}
	agent := NewAgent("Riley", mock, &stubPlanner{}, 0, quietLogger())
	o := NewOrchestrator(cs, agent, &stubMaterializer{}, 3, quietLogger())

	res, err := o.SubmitTurn(context.Background(), "user-1", "hi")
	if err != nil {
		t.Fatalf("expected conflict to be retried: %v", err)
	}
	if res.Reply != "noted" {
		t.Errorf("unexpected reply: %q", res.Reply)
	}
}

func TestSubmitTurn_SameUserSerialized(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Content: "ok"}, nil
	}
	o, s := newTestOrchestrator(t, mock, &stubPlanner{}, &stubMaterializer{})

	const turns = 5
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := o.SubmitTurn(context.Background(), "user-1", fmt.Sprintf("message %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent turn failed: %v", err)
		}
	}

	rec, _ := s.Load(context.Background(), "user-1")
	if len(rec.Conversation) != turns*2 {
		t.Errorf("expected %d turns, got %d", turns*2, len(rec.Conversation))
	}
	if rec.Revision != turns {
		t.Errorf("expected revision %d, got %d", turns, rec.Revision)
	}
}
