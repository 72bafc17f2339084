package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/schemadiff/pkg/applier"
	"github.com/David-Botos/schemadiff/pkg/model"
)

// StageMetrics tracks timing for one stage of a run
type StageMetrics struct {
	Stage     State
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the time spent in the stage so far
func (sm *StageMetrics) Duration() time.Duration {
	if sm.EndTime.IsZero() {
		return time.Since(sm.StartTime)
	}
	return sm.EndTime.Sub(sm.StartTime)
}

// RunMetrics tracks metrics for one pipeline run
type RunMetrics struct {
	mu              sync.Mutex
	logger          *zap.Logger
	RunID           string
	StartTime       time.Time
	EndTime         time.Time
	Stages          []*StageMetrics
	ImportedObjects int
	Operations      map[model.DiffKind]int
	Executed        int
	IgnoredErrors   int
	Outcome         OutcomeKind
}

// MetricsSummary is a point-in-time copy of RunMetrics
type MetricsSummary struct {
	RunID           string
	Duration        time.Duration
	StageDurations  map[State]time.Duration
	ImportedObjects int
	Operations      map[model.DiffKind]int
	Executed        int
	IgnoredErrors   int
	Outcome         OutcomeKind
	Finished        bool
}

// NewRunMetrics creates a new run metrics tracker
func NewRunMetrics(runID string, logger *zap.Logger) *RunMetrics {
	return &RunMetrics{
		logger:     logger,
		RunID:      runID,
		StartTime:  time.Now(),
		Operations: make(map[model.DiffKind]int),
	}
}

// StageStarted opens the timing of stage
func (m *RunMetrics) StageStarted(stage State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stages = append(m.Stages, &StageMetrics{Stage: stage, StartTime: time.Now()})
}

// StageFinished closes the timing of stage
func (m *RunMetrics) StageFinished(stage State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Stages) - 1; i >= 0; i-- {
		if m.Stages[i].Stage == stage && m.Stages[i].EndTime.IsZero() {
			m.Stages[i].EndTime = time.Now()
			return
		}
	}
}

// RecordImport stores the size of the imported model
func (m *RunMetrics) RecordImport(objects int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ImportedObjects = objects
}

// RecordOperation counts one classified operation
func (m *RunMetrics) RecordOperation(kind model.DiffKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Operations[kind]++
}

// RecordApply stores the statement counts of an apply
func (m *RunMetrics) RecordApply(result *applier.Result) {
	if result == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Executed = result.Executed
	m.IgnoredErrors = len(result.Ignored)
}

// Finish marks the run as ended
func (m *RunMetrics) Finish(outcome OutcomeKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
	m.Outcome = outcome
	for _, s := range m.Stages {
		if s.EndTime.IsZero() {
			s.EndTime = m.EndTime
		}
	}
}

// Summary returns a copy of the current metrics
func (m *RunMetrics) Summary() MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}

	summary := MetricsSummary{
		RunID:           m.RunID,
		Duration:        end.Sub(m.StartTime),
		StageDurations:  make(map[State]time.Duration, len(m.Stages)),
		ImportedObjects: m.ImportedObjects,
		Operations:      make(map[model.DiffKind]int, len(m.Operations)),
		Executed:        m.Executed,
		IgnoredErrors:   m.IgnoredErrors,
		Outcome:         m.Outcome,
		Finished:        !m.EndTime.IsZero(),
	}
	for _, s := range m.Stages {
		summary.StageDurations[s.Stage] += s.Duration()
	}
	for kind, n := range m.Operations {
		summary.Operations[kind] = n
	}
	return summary
}

// LogSummary logs a summary of the run
func (m *RunMetrics) LogSummary() {
	s := m.Summary()

	fields := []zap.Field{
		zap.String("runID", s.RunID),
		zap.String("outcome", s.Outcome.String()),
		zap.Duration("duration", s.Duration),
		zap.Int("importedObjects", s.ImportedObjects),
		zap.Int("executed", s.Executed),
		zap.Int("ignoredErrors", s.IgnoredErrors),
	}
	for _, kind := range model.DiffKinds {
		fields = append(fields, zap.Int(kind.String(), s.Operations[kind]))
	}
	for stage, d := range s.StageDurations {
		fields = append(fields, zap.Duration(stage.String(), d))
	}

	m.logger.Info("Pipeline run summary", fields...)
}
