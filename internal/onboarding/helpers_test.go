package onboarding

import (
	"io"

	"github.com/openclaw/coachd/internal/logging"
)

func quietLogger() *logging.Logger {
	l := logging.New()
	l.SetOutput(io.Discard)
	return l
}
