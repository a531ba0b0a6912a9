package onboarding

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateArgs_Valid(t *testing.T) {
	err := validateArgs(saveAssessmentTool, map[string]interface{}{
		"fitness_level":    "beginner",
		"experience_years": float64(2),
		"limitations":      "",
		"activity_level":   "moderate",
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateArgs_MissingRequired(t *testing.T) {
	err := validateArgs(saveGoalsTool, map[string]interface{}{
		"primary_goal": "lose_weight",
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "timeframe_weeks" {
		t.Errorf("expected timeframe_weeks flagged, got %q", ve.Field)
	}
}

func TestValidateArgs_EnumViolation(t *testing.T) {
	err := validateArgs(saveAssessmentTool, map[string]interface{}{
		"fitness_level":  "expert",
		"activity_level": "moderate",
	})
	if err == nil || !strings.Contains(err.Error(), "allowed values") {
		t.Errorf("expected enum error, got %v", err)
	}
}

func TestValidateArgs_NumericBounds(t *testing.T) {
	err := validateArgs(setWorkoutPreferencesTool, map[string]interface{}{
		"days_per_week": float64(9),
		"location":      "gym",
	})
	if err == nil || !strings.Contains(err.Error(), "at most") {
		t.Errorf("expected bounds error, got %v", err)
	}

	err = validateArgs(setWorkoutPreferencesTool, map[string]interface{}{
		"days_per_week": float64(3.5),
		"location":      "gym",
	})
	if err == nil || !strings.Contains(err.Error(), "integer") {
		t.Errorf("expected integer error, got %v", err)
	}
}

func TestValidateArgs_UnknownField(t *testing.T) {
	err := validateArgs(commitWorkoutPlanTool, map[string]interface{}{
		"approved": true,
		"extra":    "nope",
	})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "extra" {
		t.Errorf("expected unknown field error, got %v", err)
	}
}

func TestValidateArgs_ArrayItems(t *testing.T) {
	err := validateArgs(saveScheduleTool, map[string]interface{}{
		"workout_days": []interface{}{"monday", "someday"},
	})
	if err == nil || !strings.Contains(err.Error(), "allowed values") {
		t.Errorf("expected item enum error, got %v", err)
	}

	err = validateArgs(saveScheduleTool, map[string]interface{}{
		"workout_days": []interface{}{"monday", "thursday"},
		"reminders":    true,
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPhaseTools_MatchSaveTool(t *testing.T) {
	for p := PhaseAssessment; p <= PhaseScheduling; p++ {
		cfg, err := configFor(p)
		if err != nil {
			t.Fatalf("configFor(%d): %v", p, err)
		}
		if _, ok := findTool(cfg, cfg.saveTool); !ok {
			t.Errorf("phase %s: save tool %q not in tool list", p.Name(), cfg.saveTool)
		}
	}
}

func TestConfigFor_OutOfRange(t *testing.T) {
	if _, err := configFor(Phase(0)); !errors.Is(err, ErrPhaseOutOfRange) {
		t.Errorf("expected out of range for 0, got %v", err)
	}
	if _, err := configFor(Phase(6)); !errors.Is(err, ErrPhaseOutOfRange) {
		t.Errorf("expected out of range for 6, got %v", err)
	}
}
