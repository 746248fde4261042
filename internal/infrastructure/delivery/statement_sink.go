package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appbilling "github.com/dentalclinic/backend/internal/application/billing"
)

// RedisStatementQueue delivers statements by pushing their JSON onto a Redis
// list. A downstream mailer or export worker drains the list; delivery here
// means the statement is durably queued, not that it reached the patient.
type RedisStatementQueue struct {
	client *redis.Client
	key    string
}

// NewRedisStatementQueue creates a queue sink on the given Redis list key
func NewRedisStatementQueue(client *redis.Client, key string) *RedisStatementQueue {
	if key == "" {
		key = "billing:statements:outbox"
	}
	return &RedisStatementQueue{client: client, key: key}
}

// Deliver enqueues the statement for out-of-process delivery
func (q *RedisStatementQueue) Deliver(ctx context.Context, statement *appbilling.PatientStatement) error {
	payload, err := json.Marshal(statement)
	if err != nil {
		return fmt.Errorf("failed to encode statement: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue statement: %w", err)
	}
	return nil
}

// LogStatementSink writes delivered statements to the log. Used in
// development and as a fallback when no queue is configured.
type LogStatementSink struct {
	logger *zap.Logger
}

// NewLogStatementSink creates a sink that logs statements
func NewLogStatementSink(logger *zap.Logger) *LogStatementSink {
	return &LogStatementSink{logger: logger}
}

// Deliver logs the statement summary
func (s *LogStatementSink) Deliver(ctx context.Context, statement *appbilling.PatientStatement) error {
	s.logger.Info("statement generated",
		zap.String("tenant_id", statement.TenantID.String()),
		zap.String("patient_id", statement.PatientID.String()),
		zap.String("patient_name", statement.PatientName),
		zap.Time("from", statement.FromDate),
		zap.Time("to", statement.ToDate),
		zap.String("opening_balance", statement.OpeningBalance.String()),
		zap.String("closing_balance", statement.ClosingBalance.String()),
		zap.Int("lines", len(statement.Lines)),
	)
	return nil
}

var _ appbilling.StatementSink = (*RedisStatementQueue)(nil)
var _ appbilling.StatementSink = (*LogStatementSink)(nil)
