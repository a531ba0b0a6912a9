// Package logging provides structured, standards-compliant logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// TurnStart logs the start of a chat turn.
func (l *Logger) TurnStart(userID string, phase int) {
	l.Info("turn_start", map[string]interface{}{
		"user":  userID,
		"phase": phase,
	})
}

// TurnComplete logs the completion of a chat turn.
func (l *Logger) TurnComplete(userID string, phase int, duration time.Duration, status string) {
	l.Info("turn_complete", map[string]interface{}{
		"user":     userID,
		"phase":    phase,
		"duration": duration.String(),
		"status":   status,
	})
}

// PhaseAdvanced logs a phase transition for a user.
func (l *Logger) PhaseAdvanced(userID string, from, to int) {
	l.Info("phase_advanced", map[string]interface{}{
		"user": userID,
		"from": from,
		"to":   to,
	})
}

// ToolCall logs a tool invocation.
func (l *Logger) ToolCall(tool string, args map[string]interface{}) {
	// Don't log args to avoid PII - just log tool name
	l.Info("tool_call", map[string]interface{}{
		"tool": tool,
	})
}

// ToolRejected logs a tool invocation that failed schema validation.
func (l *Logger) ToolRejected(tool string, reason string) {
	l.Warn("tool_rejected", map[string]interface{}{
		"tool":   tool,
		"reason": reason,
	})
}

// ToolResult logs a tool result.
func (l *Logger) ToolResult(tool string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"tool":     tool,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("tool_error", fields)
	} else {
		l.Debug("tool_result", fields)
	}
}

// PlanProposed logs a plan proposal for a user.
func (l *Logger) PlanProposed(userID, kind string, revision int) {
	l.Info("plan_proposed", map[string]interface{}{
		"user":     userID,
		"kind":     kind,
		"revision": revision,
	})
}

// PlanModified logs a plan modification round.
func (l *Logger) PlanModified(userID, kind string, revision int) {
	l.Info("plan_modified", map[string]interface{}{
		"user":     userID,
		"kind":     kind,
		"revision": revision,
	})
}

// PlanCommitted logs an approved plan being committed into phase data.
func (l *Logger) PlanCommitted(userID, kind string, revision int) {
	l.Info("plan_committed", map[string]interface{}{
		"user":     userID,
		"kind":     kind,
		"revision": revision,
	})
}

// StoreConflict logs an optimistic-concurrency conflict and retry attempt.
func (l *Logger) StoreConflict(userID string, attempt int) {
	l.Warn("store_conflict", map[string]interface{}{
		"user":    userID,
		"attempt": attempt,
	})
}

// ProfileCreated logs the terminal profile materialization.
func (l *Logger) ProfileCreated(userID, profileID string) {
	l.Info("profile_created", map[string]interface{}{
		"user":    userID,
		"profile": profileID,
	})
}
