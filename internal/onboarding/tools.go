package onboarding

import (
	"fmt"

	"github.com/openclaw/coachd/internal/llm"
)

// toolSpec pairs an LLM tool definition with its argument schema. The
// schema doubles as server-side validation; the model's arguments are
// never trusted as-is.
type toolSpec struct {
	name        string
	description string
	params      map[string]interface{}
}

func (t toolSpec) def() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.params,
	}
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		req := make([]interface{}, len(required))
		for i, r := range required {
			req[i] = r
		}
		s["required"] = req
	}
	return s
}

var saveAssessmentTool = toolSpec{
	name:        "save_assessment",
	description: "Save the user's fitness assessment once fitness level, experience, limitations, and activity level are known.",
	params: objectSchema([]string{"fitness_level", "activity_level"}, map[string]interface{}{
		"fitness_level": map[string]interface{}{
			"type":        "string",
			"enum":        []interface{}{"beginner", "intermediate", "advanced"},
			"description": "Self-assessed training proficiency",
		},
		"experience_years": map[string]interface{}{
			"type":        "number",
			"minimum":     float64(0),
			"maximum":     float64(80),
			"description": "Years of structured training experience",
		},
		"limitations": map[string]interface{}{
			"type":        "string",
			"description": "Injuries or physical limitations, empty if none",
		},
		"activity_level": map[string]interface{}{
			"type":        "string",
			"enum":        []interface{}{"sedentary", "light", "moderate", "active", "very_active"},
			"description": "Typical daily activity outside training",
		},
	}),
}

var saveGoalsTool = toolSpec{
	name:        "save_goals",
	description: "Save the user's fitness goals once the primary goal and timeframe are known.",
	params: objectSchema([]string{"primary_goal", "timeframe_weeks"}, map[string]interface{}{
		"primary_goal": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"lose_weight", "build_muscle", "improve_endurance", "general_fitness", "improve_strength"},
		},
		"target_weight_kg": map[string]interface{}{
			"type":    "number",
			"minimum": float64(30),
			"maximum": float64(300),
		},
		"timeframe_weeks": map[string]interface{}{
			"type":    "integer",
			"minimum": float64(1),
			"maximum": float64(104),
		},
		"motivation": map[string]interface{}{
			"type":        "string",
			"description": "What drives the user, in their own words",
		},
	}),
}

var setWorkoutPreferencesTool = toolSpec{
	name:        "set_workout_preferences",
	description: "Record workout preferences and trigger generation of a draft workout plan for the user to review.",
	params: objectSchema([]string{"days_per_week", "location"}, map[string]interface{}{
		"days_per_week": map[string]interface{}{
			"type":    "integer",
			"minimum": float64(1),
			"maximum": float64(7),
		},
		"session_minutes": map[string]interface{}{
			"type":    "integer",
			"minimum": float64(10),
			"maximum": float64(180),
		},
		"location": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"gym", "home", "outdoors", "mixed"},
		},
		"equipment": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Available equipment, empty for bodyweight only",
		},
	}),
}

var commitWorkoutPlanTool = toolSpec{
	name:        "commit_workout_plan",
	description: "Record the user's decision on the proposed workout plan. approved=true accepts the plan as-is; approved=false with modifications requests a revised draft.",
	params: objectSchema([]string{"approved"}, map[string]interface{}{
		"approved": map[string]interface{}{
			"type": "boolean",
		},
		"modifications": map[string]interface{}{
			"type":        "string",
			"description": "The user's requested changes, required when approved is false",
		},
	}),
}

var setDietPreferencesTool = toolSpec{
	name:        "set_diet_preferences",
	description: "Record diet preferences and trigger generation of a draft meal plan for the user to review.",
	params: objectSchema([]string{"dietary_style"}, map[string]interface{}{
		"dietary_style": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"omnivore", "vegetarian", "vegan", "pescatarian", "keto", "halal", "kosher"},
		},
		"allergies": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"meals_per_day": map[string]interface{}{
			"type":    "integer",
			"minimum": float64(2),
			"maximum": float64(6),
		},
	}),
}

var commitDietPlanTool = toolSpec{
	name:        "commit_diet_plan",
	description: "Record the user's decision on the proposed meal plan. approved=true accepts the plan as-is; approved=false with modifications requests a revised draft.",
	params: objectSchema([]string{"approved"}, map[string]interface{}{
		"approved": map[string]interface{}{
			"type": "boolean",
		},
		"modifications": map[string]interface{}{
			"type":        "string",
			"description": "The user's requested changes, required when approved is false",
		},
	}),
}

var saveScheduleTool = toolSpec{
	name:        "save_schedule",
	description: "Save the agreed workout schedule and finish onboarding.",
	params: objectSchema([]string{"workout_days"}, map[string]interface{}{
		"workout_days": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string", "enum": []interface{}{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}},
		},
		"preferred_time": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"morning", "midday", "evening"},
		},
		"reminders": map[string]interface{}{
			"type": "boolean",
		},
	}),
}

// validateArgs checks tool-call arguments against the tool's schema:
// required fields, primitive types, enum membership, and numeric
// bounds. Unknown fields are rejected so typos surface immediately.
func validateArgs(t toolSpec, args map[string]interface{}) error {
	props, _ := t.params["properties"].(map[string]interface{})

	if req, ok := t.params["required"].([]interface{}); ok {
		for _, r := range req {
			name := r.(string)
			if _, present := args[name]; !present {
				return &ValidationError{Tool: t.name, Field: name, Reason: "required field missing"}
			}
		}
	}

	for name, val := range args {
		schema, ok := props[name].(map[string]interface{})
		if !ok {
			return &ValidationError{Tool: t.name, Field: name, Reason: "unknown field"}
		}
		if err := validateValue(t.name, name, schema, val); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(tool, field string, schema map[string]interface{}, val interface{}) error {
	typ, _ := schema["type"].(string)

	switch typ {
	case "string":
		s, ok := val.(string)
		if !ok {
			return &ValidationError{Tool: tool, Field: field, Reason: "expected a string"}
		}
		return validateEnum(tool, field, schema, s)

	case "boolean":
		if _, ok := val.(bool); !ok {
			return &ValidationError{Tool: tool, Field: field, Reason: "expected a boolean"}
		}

	case "number", "integer":
		// JSON numbers decode as float64.
		n, ok := val.(float64)
		if !ok {
			return &ValidationError{Tool: tool, Field: field, Reason: "expected a number"}
		}
		if typ == "integer" && n != float64(int64(n)) {
			return &ValidationError{Tool: tool, Field: field, Reason: "expected an integer"}
		}
		if min, ok := schema["minimum"].(float64); ok && n < min {
			return &ValidationError{Tool: tool, Field: field, Reason: fmt.Sprintf("must be at least %g", min)}
		}
		if max, ok := schema["maximum"].(float64); ok && n > max {
			return &ValidationError{Tool: tool, Field: field, Reason: fmt.Sprintf("must be at most %g", max)}
		}

	case "array":
		items, ok := val.([]interface{})
		if !ok {
			return &ValidationError{Tool: tool, Field: field, Reason: "expected an array"}
		}
		itemSchema, _ := schema["items"].(map[string]interface{})
		if itemSchema != nil {
			for _, item := range items {
				if err := validateValue(tool, field, itemSchema, item); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func validateEnum(tool, field string, schema map[string]interface{}, s string) error {
	enum, ok := schema["enum"].([]interface{})
	if !ok {
		return nil
	}
	for _, e := range enum {
		if e == s {
			return nil
		}
	}
	return &ValidationError{Tool: tool, Field: field, Reason: fmt.Sprintf("%q is not one of the allowed values", s)}
}
