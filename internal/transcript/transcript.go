// Package transcript renders onboarding records as readable timelines
// and provides an interactive terminal viewer.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// phaseNames mirrors the onboarding phase order for display.
var phaseNames = map[int]string{
	1: "assessment",
	2: "goals",
	3: "workout_planning",
	4: "diet_planning",
	5: "scheduling",
}

// recordView is the subset of the stored record the renderer needs.
// It matches the file store's JSON layout.
type recordView struct {
	UserID       string                     `json:"user_id"`
	Phase        int                        `json:"phase"`
	PhaseData    map[string]json.RawMessage `json:"phase_data"`
	Pending      map[string]json.RawMessage `json:"pending"`
	Conversation []turnView                 `json:"conversation"`
	Completed    bool                       `json:"completed"`
	Revision     int64                      `json:"revision"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

type turnView struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Phase     int       `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Renderer formats onboarding records for display.
type Renderer struct {
	output  io.Writer
	verbose bool
}

// New creates a Renderer writing to output. Verbose mode includes
// saved phase data and pending proposals inline.
func New(output io.Writer, verbose bool) *Renderer {
	return &Renderer{output: output, verbose: verbose}
}

// RenderJSON renders a record from its stored JSON form.
func (r *Renderer) RenderJSON(data []byte) error {
	var rec recordView
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("failed to parse record: %w", err)
	}
	return r.render(&rec)
}

func (r *Renderer) render(rec *recordView) error {
	status := "in progress"
	if rec.Completed {
		status = "completed"
	}

	fmt.Fprintf(r.output, "╔══════════════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(r.output, "║ ONBOARDING: %-57s ║\n", rec.UserID)
	fmt.Fprintf(r.output, "╠══════════════════════════════════════════════════════════════════════╣\n")
	fmt.Fprintf(r.output, "║ Phase:    %-59s ║\n", phaseLabel(rec.Phase))
	fmt.Fprintf(r.output, "║ Status:   %-59s ║\n", status)
	fmt.Fprintf(r.output, "║ Revision: %-59d ║\n", rec.Revision)
	fmt.Fprintf(r.output, "║ Started:  %-59s ║\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(r.output, "╚══════════════════════════════════════════════════════════════════════╝\n\n")

	fmt.Fprintf(r.output, "CONVERSATION (%d turns)\n", len(rec.Conversation))
	fmt.Fprintf(r.output, "─────────────────────────────────────────────────────────────────────────\n")

	lastPhase := 0
	for i, t := range rec.Conversation {
		if t.Phase != lastPhase {
			fmt.Fprintf(r.output, "\n▶ PHASE %d: %s\n", t.Phase, strings.ToUpper(phaseName(t.Phase)))
			lastPhase = t.Phase
		}
		r.formatTurn(i+1, &t)
	}

	if r.verbose {
		r.renderPhaseData(rec)
		r.renderPending(rec)
	}

	fmt.Fprintf(r.output, "\n─────────────────────────────────────────────────────────────────────────\n")
	if rec.Completed {
		fmt.Fprintf(r.output, "✓ COMPLETED\n")
	} else {
		fmt.Fprintf(r.output, "⋯ IN PROGRESS (%s)\n", phaseLabel(rec.Phase))
	}
	return nil
}

func (r *Renderer) formatTurn(seq int, t *turnView) {
	ts := t.Timestamp.Format("15:04:05")
	marker := "👤 USER"
	if t.Role == "assistant" {
		marker = "🤖 COACH"
	}
	fmt.Fprintf(r.output, "%4d │ %s │ %s\n", seq, ts, marker)
	r.printIndented("     │ ", truncate(t.Text, 500))
}

func (r *Renderer) renderPhaseData(rec *recordView) {
	if len(rec.PhaseData) == 0 {
		return
	}
	fmt.Fprintf(r.output, "\nSAVED DATA\n")
	for _, key := range sortedKeys(rec.PhaseData) {
		fmt.Fprintf(r.output, "  📝 %s: %s\n", key, truncate(string(rec.PhaseData[key]), 200))
	}
}

func (r *Renderer) renderPending(rec *recordView) {
	if len(rec.Pending) == 0 {
		return
	}
	fmt.Fprintf(r.output, "\nPENDING PROPOSALS\n")
	for _, key := range sortedKeys(rec.Pending) {
		fmt.Fprintf(r.output, "  ⏳ %s: %s\n", key, truncate(string(rec.Pending[key]), 200))
	}
}

func (r *Renderer) printIndented(prefix string, text string) {
	for _, line := range strings.Split(text, "\n") {
		if line != "" {
			fmt.Fprintf(r.output, "%s%s\n", prefix, line)
		}
	}
}

func phaseName(p int) string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase_%d", p)
}

func phaseLabel(p int) string {
	if p > len(phaseNames) {
		return "finished"
	}
	return fmt.Sprintf("%d (%s)", p, phaseName(p))
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
