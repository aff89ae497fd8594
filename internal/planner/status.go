package planner

import (
	"github.com/rs/zerolog"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Event tags a status entry so callers can react without parsing messages.
type Event string

const (
	EventAttempt   Event = "attempt"
	EventStage     Event = "stage"
	EventRetry     Event = "retry"
	EventAbandon   Event = "abandon"
	EventAbort     Event = "abort"
	EventSuccess   Event = "success"
	EventExhausted Event = "exhausted"
)

// StatusEntry is one human-readable progress line.
type StatusEntry struct {
	Level   Level  `json:"level"`
	Event   Event  `json:"event"`
	Model   string `json:"model,omitempty"`
	Stage   Stage  `json:"stage,omitempty"`
	Message string `json:"message"`
}

// StatusFunc receives status entries as they are produced.
type StatusFunc func(StatusEntry)

// statusLog appends entries to the result, mirrors them to the logger and
// forwards them to the live reporter.
type statusLog struct {
	result *PlanResult
	logger zerolog.Logger
	report StatusFunc
}

func (s *statusLog) add(entry StatusEntry) {
	s.result.StatusLog = append(s.result.StatusLog, entry)

	ev := s.logger.WithLevel(entry.Level.zerologLevel()).Str("event", string(entry.Event))
	if entry.Model != "" {
		ev = ev.Str("model", entry.Model)
	}
	if entry.Stage != "" {
		ev = ev.Str("stage", string(entry.Stage))
	}
	ev.Msg(entry.Message)

	if s.report != nil {
		s.report(entry)
	}
}
