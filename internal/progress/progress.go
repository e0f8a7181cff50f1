// Package progress fans crawl progress events out to interested sinks. The
// scheduler emits events, it never cares who listens.
package progress

import (
	"go.uber.org/zap"

	"github.com/ksaito/jobharvest/internal/metrics"
)

// Stage tags what an event is about.
type Stage string

// Event stages.
const (
	StagePage     Stage = "page"
	StageDetail   Stage = "detail"
	StageTask     Stage = "task"
	StagePipeline Stage = "pipeline"
	StageRun      Stage = "run"
)

// Event is one progress update. Current/Total are stage-relative (pages
// within a task, tasks within a run).
type Event struct {
	Stage   Stage
	Source  string
	Keyword string
	Area    string
	Current int
	Total   int
	Note    string
}

// Reporter consumes progress events. Implementations must be safe for
// concurrent use and must not block.
type Reporter interface {
	Report(Event)
}

// Nop discards all events.
type Nop struct{}

// Report does nothing.
func (Nop) Report(Event) {}

// Log writes events to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog builds a logging reporter.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Report logs the event at info level.
func (l *Log) Report(ev Event) {
	fields := []zap.Field{
		zap.String("stage", string(ev.Stage)),
	}
	if ev.Source != "" {
		fields = append(fields, zap.String("source", ev.Source))
	}
	if ev.Keyword != "" {
		fields = append(fields, zap.String("keyword", ev.Keyword))
	}
	if ev.Area != "" {
		fields = append(fields, zap.String("area", ev.Area))
	}
	if ev.Total > 0 {
		fields = append(fields, zap.Int("current", ev.Current), zap.Int("total", ev.Total))
	}
	if ev.Note != "" {
		fields = append(fields, zap.String("note", ev.Note))
	}
	l.logger.Info("progress", fields...)
}

// Counter increments the progress-event metric per stage.
type Counter struct{}

// Report counts the event.
func (Counter) Report(ev Event) {
	metrics.ProgressEvents.WithLabelValues(string(ev.Stage)).Inc()
}

// Multi forwards each event to every reporter in order.
type Multi []Reporter

// Report fans the event out.
func (m Multi) Report(ev Event) {
	for _, r := range m {
		r.Report(ev)
	}
}
