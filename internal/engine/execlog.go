package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
)

// LogSink — журнал выполнения run (только дополнение).
//
// Каждая запись дублируется в slog-логгер run, но источник истины
// для редактора — именно LogSink.
type LogSink struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	logger  *slog.Logger
	now     func() time.Time
}

// NewLogSink создаёт журнал. Nil-логгер заменяется на slog.Default,
// nil-часы — на time.Now.
func NewLogSink(logger *slog.Logger, now func() time.Time) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &LogSink{
		logger: logger,
		now:    now,
	}
}

// Append добавляет запись. Пустой Timestamp заполняется текущим временем.
func (s *LogSink) Append(e domain.LogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	attrs := []any{"severity", string(e.Severity)}
	if e.NodeID != "" {
		attrs = append(attrs, "node_id", e.NodeID)
	}
	s.logger.Log(context.Background(), slogLevel(e.Severity), e.Message, attrs...)
}

// Add — сокращение для Append.
func (s *LogSink) Add(sev domain.Severity, nodeID, message string) {
	s.Append(domain.LogEntry{Severity: sev, NodeID: nodeID, Message: message})
}

// Entries возвращает копию записей.
func (s *LogSink) Entries() []domain.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len возвращает количество записей.
func (s *LogSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func slogLevel(sev domain.Severity) slog.Level {
	switch sev {
	case domain.SeverityError:
		return slog.LevelError
	case domain.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
