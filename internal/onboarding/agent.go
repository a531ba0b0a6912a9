package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openclaw/coachd/internal/llm"
	"github.com/openclaw/coachd/internal/logging"
	"github.com/openclaw/coachd/internal/store"
)

// maxModelCalls bounds the tool loop within one turn. A well-behaved
// phase never needs more than preferences + commit plus one validation
// recovery.
const maxModelCalls = 4

// Outcome is the result of one agent turn. All state changes are
// staged in Mutation; nothing touches the store until the orchestrator
// applies it, so a failed or retried turn leaves no trace.
type Outcome struct {
	Reply         string
	Mutation      store.Mutation
	PhaseComplete bool
}

// Agent runs one conversational turn for whatever phase the record is
// in. The agent itself is phase-agnostic; the strategy table supplies
// the prompt, tools, and completion rules.
type Agent struct {
	coach       string
	provider    llm.Provider
	planner     PlanGenerator
	chatTimeout time.Duration
	logger      *logging.Logger
}

// NewAgent creates an agent. A zero chatTimeout means the caller's
// context governs model calls.
func NewAgent(coach string, provider llm.Provider, planner PlanGenerator, chatTimeout time.Duration, logger *logging.Logger) *Agent {
	if coach == "" {
		coach = "Coach"
	}
	if logger == nil {
		logger = logging.New()
	}
	return &Agent{
		coach:       coach,
		provider:    provider,
		planner:     planner,
		chatTimeout: chatTimeout,
		logger:      logger.WithComponent("agent"),
	}
}

// turnState accumulates staged changes while the tool loop runs.
type turnState struct {
	outcome  Outcome
	proposal *PlanProposal // working copy, staged or loaded from the record
}

// HandleTurn processes one user message against the record's current
// phase. The record is read-only here; every change is staged in the
// returned Outcome's Mutation.
func (a *Agent) HandleTurn(ctx context.Context, rec *store.Record, userText string) (*Outcome, error) {
	phase := Phase(rec.Phase)
	cfg, err := configFor(phase)
	if err != nil {
		return nil, err
	}

	prior := priorPhaseData(rec, phase)
	messages := a.buildMessages(cfg, rec, prior, userText)

	toolDefs := make([]llm.ToolDef, len(cfg.tools))
	for i, t := range cfg.tools {
		toolDefs[i] = t.def()
	}

	st := &turnState{}
	if raw, ok := rec.Pending[cfg.planKind]; ok && cfg.planKind != "" {
		p, err := decodeProposal(raw)
		if err != nil {
			return nil, err
		}
		st.proposal = p
	}

	var lastContent string
	for call := 0; call < maxModelCalls; call++ {
		resp, err := a.chat(ctx, llm.ChatRequest{Messages: messages, Tools: toolDefs})
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		if resp.Content != "" {
			lastContent = resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			st.outcome.Reply = resp.Content
			a.finishTurn(st, rec, userText, phase)
			return &st.outcome, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// One tool call per reply. More than one means the model tried
		// to skip ahead; reject all of them and let it retry.
		if len(resp.ToolCalls) > 1 {
			a.logger.ToolRejected(resp.ToolCalls[0].Name, "multiple tool calls in one reply")
			for _, tc := range resp.ToolCalls {
				messages = append(messages, llm.Message{
					Role:       "tool",
					Content:    "Error: only one tool call is allowed per reply. Call one tool at a time.",
					ToolCallID: tc.ID,
				})
			}
			continue
		}

		tc := resp.ToolCalls[0]
		start := time.Now()
		result, err := a.dispatchTool(ctx, cfg, rec, prior, st, tc)
		a.logger.ToolResult(tc.Name, time.Since(start), err)
		if err != nil {
			// External failure (plan generation). Nothing staged leaks.
			return nil, err
		}

		messages = append(messages, llm.Message{
			Role:       "tool",
			Content:    result,
			ToolCallID: tc.ID,
		})
	}

	// The loop budget ran out with tool calls still coming. Keep what
	// was staged and close the turn with the last content we saw.
	if lastContent == "" {
		lastContent = "Let's keep going. Where were we?"
	}
	st.outcome.Reply = lastContent
	a.finishTurn(st, rec, userText, phase)
	return &st.outcome, nil
}

func (a *Agent) chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if a.chatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.chatTimeout)
		defer cancel()
	}
	return a.provider.Chat(ctx, req)
}

// priorPhaseData returns saved data for phases strictly before p. Data
// for the current phase is never shown to the model until its save
// tool has succeeded.
func priorPhaseData(rec *store.Record, p Phase) map[string]json.RawMessage {
	prior := make(map[string]json.RawMessage)
	for q := PhaseAssessment; q < p && q <= PhaseScheduling; q++ {
		if data, ok := rec.PhaseData[q.Name()]; ok {
			prior[q.Name()] = data
		}
	}
	return prior
}

func (a *Agent) buildMessages(cfg *phaseConfig, rec *store.Record, prior map[string]json.RawMessage, userText string) []llm.Message {
	messages := []llm.Message{
		{Role: "system", Content: cfg.prompt(a.coach, prior)},
	}
	for _, t := range rec.Conversation {
		if Phase(t.Phase) != cfg.phase {
			continue
		}
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Text})
	}
	return append(messages, llm.Message{Role: "user", Content: userText})
}

func (a *Agent) finishTurn(st *turnState, rec *store.Record, userText string, phase Phase) {
	now := time.Now().UTC()
	st.outcome.Mutation.AppendTurns = []store.Turn{
		{Role: "user", Text: userText, Phase: int(phase), Timestamp: now},
		{Role: "assistant", Text: st.outcome.Reply, Phase: int(phase), Timestamp: now},
	}
}

// dispatchTool executes one tool call against the turn state. The
// returned string goes back to the model as the tool result; a Go
// error aborts the whole turn (external dependency failure).
func (a *Agent) dispatchTool(ctx context.Context, cfg *phaseConfig, rec *store.Record, prior map[string]json.RawMessage, st *turnState, tc llm.ToolCallResponse) (string, error) {
	spec, ok := findTool(cfg, tc.Name)
	if !ok {
		a.logger.ToolRejected(tc.Name, "not available in this phase")
		return fmt.Sprintf("Error: tool %q is not available in this phase.", tc.Name), nil
	}

	if err := validateArgs(spec, tc.Args); err != nil {
		a.logger.ToolRejected(tc.Name, err.Error())
		return fmt.Sprintf("Error: %s. Ask the user for the missing or corrected information.", err.Error()), nil
	}

	a.logger.ToolCall(tc.Name, tc.Args)

	switch {
	case cfg.planKind == "" && tc.Name == cfg.saveTool:
		return a.handleSave(cfg, st, tc.Args)
	case cfg.planKind != "" && tc.Name != cfg.saveTool:
		return a.handlePreferences(ctx, cfg, rec, prior, st, tc.Args)
	case cfg.planKind != "" && tc.Name == cfg.saveTool:
		return a.handleCommit(ctx, cfg, rec, st, tc.Args)
	default:
		return fmt.Sprintf("Error: tool %q cannot be handled here.", tc.Name), nil
	}
}

func findTool(cfg *phaseConfig, name string) (toolSpec, bool) {
	for _, t := range cfg.tools {
		if t.name == name {
			return t, true
		}
	}
	return toolSpec{}, false
}

// handleSave stages validated data as the phase's saved output and
// marks the phase complete.
func (a *Agent) handleSave(cfg *phaseConfig, st *turnState, args map[string]interface{}) (string, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal %s data: %w", cfg.phase.Name(), err)
	}

	st.outcome.Mutation.SetPhaseData = map[string]json.RawMessage{cfg.phase.Name(): data}
	st.outcome.PhaseComplete = true
	return "Saved. Wrap up this topic and move the user along.", nil
}

// handlePreferences stages preferences and generates a draft plan for
// the user to review.
func (a *Agent) handlePreferences(ctx context.Context, cfg *phaseConfig, rec *store.Record, prior map[string]json.RawMessage, st *turnState, args map[string]interface{}) (string, error) {
	prefs, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal preferences: %w", err)
	}

	// The planner sees everything saved so far plus these preferences.
	planCtx := make(map[string]json.RawMessage, len(prior)+1)
	for k, v := range prior {
		planCtx[k] = v
	}
	planCtx[cfg.planKind+"_preferences"] = prefs

	draft, err := a.planner.Generate(ctx, cfg.planKind, planCtx)
	if err != nil {
		return "", fmt.Errorf("generate %s plan: %w", cfg.planKind, err)
	}

	proposal := Propose(cfg.planKind, draft)
	proposal.Preferences = prefs
	if err := a.stageProposal(st, proposal); err != nil {
		return "", err
	}

	a.logger.PlanProposed(rec.UserID, cfg.planKind, proposal.Revision)
	return fmt.Sprintf("Draft %s plan generated. Present it to the user and ask whether it works for them:\n%s", cfg.planKind, string(draft)), nil
}

// handleCommit records the user's decision on the pending proposal.
func (a *Agent) handleCommit(ctx context.Context, cfg *phaseConfig, rec *store.Record, st *turnState, args map[string]interface{}) (string, error) {
	if st.proposal == nil {
		a.logger.ToolRejected(cfg.saveTool, ErrNoProposal.Error())
		return "Error: no plan has been proposed yet. Gather the user's preferences first.", nil
	}

	approved, _ := args["approved"].(bool)
	modifications, _ := args["modifications"].(string)

	if !approved {
		if modifications == "" {
			return "The user declined but gave no changes. Ask what they would like changed.", nil
		}

		revised, err := a.planner.Modify(ctx, cfg.planKind, st.proposal.Draft, modifications)
		if err != nil {
			return "", fmt.Errorf("revise %s plan: %w", cfg.planKind, err)
		}
		if err := st.proposal.Modify(revised); err != nil {
			return "", err
		}
		if err := a.stageProposal(st, st.proposal); err != nil {
			return "", err
		}

		a.logger.PlanModified(rec.UserID, cfg.planKind, st.proposal.Revision)
		return fmt.Sprintf("Revised %s plan (revision %d). Present it to the user and ask whether it works now:\n%s",
			cfg.planKind, st.proposal.Revision, string(st.proposal.Draft)), nil
	}

	if err := st.proposal.Approve(); err != nil {
		return "", err
	}
	if err := st.proposal.Commit(); err != nil {
		return "", err
	}

	committed, err := json.Marshal(map[string]json.RawMessage{
		"preferences": st.proposal.Preferences,
		"plan":        st.proposal.Draft,
	})
	if err != nil {
		return "", fmt.Errorf("marshal committed plan: %w", err)
	}

	st.outcome.Mutation.SetPhaseData = map[string]json.RawMessage{cfg.phase.Name(): committed}
	st.outcome.Mutation.SetPending = nil
	st.outcome.Mutation.ClearPending = []string{cfg.planKind}
	st.outcome.PhaseComplete = true

	a.logger.PlanCommitted(rec.UserID, cfg.planKind, st.proposal.Revision)
	return "Plan committed. Wrap up this topic and move the user along.", nil
}

func (a *Agent) stageProposal(st *turnState, p *PlanProposal) error {
	raw, err := encodeProposal(p)
	if err != nil {
		return err
	}
	st.proposal = p
	st.outcome.Mutation.SetPending = map[string]json.RawMessage{p.Kind: raw}
	return nil
}
