// Package profile materializes finished onboarding records into user
// profiles. Materialization happens exactly once per user; reruns
// return the existing profile.
package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Version is the current profile schema version.
const Version = 1

// Sections lists the profile sections in onboarding order. Each maps
// to one phase's saved data.
var Sections = []string{
	"assessment",
	"goals",
	"workout_planning",
	"diet_planning",
	"scheduling",
}

// Profile is a fully materialized user profile. Locked profiles are
// owned by the rest of the application; onboarding never touches them
// again.
type Profile struct {
	ID        string
	UserID    string
	Locked    bool
	Version   int
	Sections  map[string]json.RawMessage
	CreatedAt time.Time
}

// MaterializationError reports why a record could not be materialized.
type MaterializationError struct {
	UserID  string
	Missing []string
	Err     error
}

func (e *MaterializationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("materialize profile for %s: missing phase data: %s",
			e.UserID, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("materialize profile for %s: %v", e.UserID, e.Err)
}

func (e *MaterializationError) Unwrap() error { return e.Err }
