package audit

import (
	"context"
	"time"

	"MycoCast/internal/domain/models"
	applogger "MycoCast/pkg/logger"
	"MycoCast/pkg/queue"
)

// MsgDecisionAudit is the queue message type for decision audit records.
const MsgDecisionAudit = "decision_audit"

// Record captures one served decision with its explanation for offline
// review. Queued rather than written inline so auditing never adds latency
// to the serving path.
type Record struct {
	Key         string                `json:"key"`
	Decision    *models.FusedDecision `json:"decision"`
	Explanation models.Explanation    `json:"explanation"`
	ServedAt    time.Time             `json:"served_at"`
}

// Trail publishes decision audit records. Nil-safe: a nil Trail drops
// records silently, so serving works without the queue configured.
type Trail struct {
	q queue.QueueService
	l *applogger.Logger
}

func NewTrail(q queue.QueueService, l *applogger.Logger) *Trail {
	return &Trail{q: q, l: l}
}

// Publish enqueues a record, best-effort.
func (t *Trail) Publish(ctx context.Context, rec Record) {
	if t == nil || t.q == nil {
		return
	}
	if err := t.q.PublishMessage(ctx, MsgDecisionAudit, rec); err != nil && t.l != nil {
		t.l.Warn("audit publish failed", applogger.Error(err))
	}
}

// LogJob consumes audit records and writes them to the structured log.
type LogJob struct {
	l *applogger.Logger
}

func NewLogJob(l *applogger.Logger) *LogJob { return &LogJob{l: l} }

func (j *LogJob) Name() string { return "decision-audit-log" }
func (j *LogJob) Type() string { return MsgDecisionAudit }

func (j *LogJob) Handle(ctx context.Context, payload interface{}) error {
	rec, err := queue.ParsePayload[Record](payload)
	if err != nil {
		return err
	}
	j.l.Info("decision audit",
		applogger.String("key", rec.Key),
		applogger.Float64("quantity", rec.Decision.Quantity),
		applogger.Float64("confidence", rec.Decision.Confidence),
		applogger.Int("trail_events", len(rec.Explanation.Trail)),
	)
	return nil
}

var _ queue.Job = (*LogJob)(nil)
