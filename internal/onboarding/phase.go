// Package onboarding implements the multi-phase conversational
// onboarding flow: a per-phase agent loop over an LLM provider, plan
// proposal and approval for the planning phases, and the orchestrator
// that ties turns to the persistent record.
package onboarding

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Phase identifies one onboarding phase. Phases run strictly in order
// and never regress.
type Phase int

const (
	PhaseAssessment      Phase = 1
	PhaseGoals           Phase = 2
	PhaseWorkoutPlanning Phase = 3
	PhaseDietPlanning    Phase = 4
	PhaseScheduling      Phase = 5

	// PhaseCount is the number of onboarding phases. A record whose
	// phase exceeds PhaseCount has finished conversing and is waiting
	// on profile materialization.
	PhaseCount = 5
)

// Name returns the stable identifier used as the phase_data key.
func (p Phase) Name() string {
	switch p {
	case PhaseAssessment:
		return "assessment"
	case PhaseGoals:
		return "goals"
	case PhaseWorkoutPlanning:
		return "workout_planning"
	case PhaseDietPlanning:
		return "diet_planning"
	case PhaseScheduling:
		return "scheduling"
	default:
		return fmt.Sprintf("phase_%d", int(p))
	}
}

// phaseConfig is one row of the strategy table. The agent loop is
// generic; everything phase-specific lives here.
type phaseConfig struct {
	phase    Phase
	planKind string // non-empty for phases that propose a plan
	prompt   func(coach string, prior map[string]json.RawMessage) string
	tools    []toolSpec
	saveTool string // the tool whose success completes the phase
}

// configFor returns the strategy entry for a phase.
func configFor(p Phase) (*phaseConfig, error) {
	if p < PhaseAssessment || p > PhaseScheduling {
		return nil, fmt.Errorf("%w: %d", ErrPhaseOutOfRange, int(p))
	}
	return &phaseTable[p-1], nil
}

// priorSummary renders earlier phases' saved data for a system prompt.
func priorSummary(prior map[string]json.RawMessage) string {
	if len(prior) == 0 {
		return ""
	}
	keys := make([]string, 0, len(prior))
	for k := range prior {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("\n\nWhat you already know about this user:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, string(prior[k]))
	}
	return b.String()
}

const promptPreamble = `You are %s, a friendly and knowledgeable fitness coach guiding a new user through onboarding. Keep replies short and conversational. Ask one question at a time. Never invent answers the user has not given.`

var phaseTable = [PhaseCount]phaseConfig{
	{
		phase:    PhaseAssessment,
		saveTool: "save_assessment",
		tools:    []toolSpec{saveAssessmentTool},
		prompt: func(coach string, prior map[string]json.RawMessage) string {
			return fmt.Sprintf(promptPreamble, coach) + `

This is the assessment phase. Learn the user's current fitness level, training experience, physical limitations or injuries, and daily activity level. Once you have all of it, call save_assessment exactly once. Do not call it before the user has answered.` + priorSummary(prior)
		},
	},
	{
		phase:    PhaseGoals,
		saveTool: "save_goals",
		tools:    []toolSpec{saveGoalsTool},
		prompt: func(coach string, prior map[string]json.RawMessage) string {
			return fmt.Sprintf(promptPreamble, coach) + `

This is the goals phase. Learn the user's primary goal, target weight if relevant, desired timeframe, and what motivates them. Once you have enough, call save_goals exactly once. Goals must be realistic for the assessment you already have.` + priorSummary(prior)
		},
	},
	{
		phase:    PhaseWorkoutPlanning,
		planKind: "workout",
		saveTool: "commit_workout_plan",
		tools:    []toolSpec{setWorkoutPreferencesTool, commitWorkoutPlanTool},
		prompt: func(coach string, prior map[string]json.RawMessage) string {
			return fmt.Sprintf(promptPreamble, coach) + `

This is the workout planning phase. First gather preferences (training days per week, session length, location, available equipment) and call set_workout_preferences. A draft plan will be generated and shown to the user. When the user reacts, call commit_workout_plan: approved=true if they accept, or approved=false with their requested modifications so a revised draft can be produced. Never commit a plan the user has not seen.` + priorSummary(prior)
		},
	},
	{
		phase:    PhaseDietPlanning,
		planKind: "diet",
		saveTool: "commit_diet_plan",
		tools:    []toolSpec{setDietPreferencesTool, commitDietPlanTool},
		prompt: func(coach string, prior map[string]json.RawMessage) string {
			return fmt.Sprintf(promptPreamble, coach) + `

This is the diet planning phase. First gather preferences (dietary style, allergies, meals per day) and call set_diet_preferences. A draft meal plan will be generated and shown to the user. When the user reacts, call commit_diet_plan: approved=true if they accept, or approved=false with their requested modifications for a revised draft. Never commit a plan the user has not seen.` + priorSummary(prior)
		},
	},
	{
		phase:    PhaseScheduling,
		saveTool: "save_schedule",
		tools:    []toolSpec{saveScheduleTool},
		prompt: func(coach string, prior map[string]json.RawMessage) string {
			return fmt.Sprintf(promptPreamble, coach) + `

This is the final scheduling phase. Agree on concrete workout days that fit the committed workout plan, a preferred time of day, and whether the user wants reminders. Then call save_schedule exactly once and let the user know their profile is ready.` + priorSummary(prior)
		},
	},
}
