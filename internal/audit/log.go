package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/imwg-risk-server/internal/domain"
	"github.com/imwg-risk-server/internal/metrics"
)

// Log records and reads the history of assessments.
type Log struct {
	store   Store
	logger  *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewLog creates a history log over store.
func NewLog(store Store, logger *logrus.Logger, m *metrics.Metrics) *Log {
	return &Log{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record appends an entry for the assessment. It never fails: a write error
// is logged and counted, and the caller continues.
func (l *Log) Record(ctx context.Context, assessmentID string, action domain.HistoryAction, details map[string]interface{}, performedBy *string) {
	if details == nil {
		details = map[string]interface{}{}
	}

	entry := &domain.HistoryEntry{
		ID:           uuid.New().String(),
		AssessmentID: assessmentID,
		Action:       action,
		Details:      details,
		PerformedBy:  performedBy,
		Timestamp:    l.now(),
	}

	if err := l.store.Insert(ctx, entry); err != nil {
		l.metrics.AuditFailures.WithLabelValues(string(action)).Inc()
		l.logger.WithFields(logrus.Fields{
			"assessment_id": assessmentID,
			"action":        action,
			"error":         err,
		}).Error("Failed to record assessment history")
		return
	}

	l.metrics.AuditWrites.WithLabelValues(string(action)).Inc()
	l.logger.WithFields(logrus.Fields{
		"assessment_id": assessmentID,
		"action":        action,
		"history_id":    entry.ID,
	}).Debug("Recorded assessment history")
}

// Entries returns the raw trail of an assessment, most recent first. It does
// not check that the assessment still exists.
func (l *Log) Entries(ctx context.Context, assessmentID string) ([]*domain.HistoryEntry, error) {
	entries, err := l.store.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", assessmentID, err)
	}
	return entries, nil
}

// ExportJSON writes the trail of an assessment as indented JSON.
func (l *Log) ExportJSON(ctx context.Context, assessmentID string, writer io.Writer) error {
	entries, err := l.Entries(ctx, assessmentID)
	if err != nil {
		return err
	}

	export := &HistoryExport{
		Version:      "1.0",
		AssessmentID: assessmentID,
		ExportedAt:   l.now(),
		Count:        len(entries),
		Entries:      entries,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// Ping checks the history store.
func (l *Log) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Close closes the underlying store.
func (l *Log) Close() error {
	return l.store.Close()
}

// ActorDetails returns a details payload carrying the actor name under key,
// or UnknownActor when none was supplied.
func ActorDetails(key string, performedBy *string) map[string]interface{} {
	actor := UnknownActor
	if performedBy != nil && *performedBy != "" {
		actor = *performedBy
	}
	return map[string]interface{}{key: actor}
}
