package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/solatis/labelkeeper/internal/core/logging"
	"github.com/solatis/labelkeeper/internal/core/metrics"
	"github.com/solatis/labelkeeper/internal/core/tracing"
	"github.com/solatis/labelkeeper/internal/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ProcessResult is returned for every classified payload.
type ProcessResult struct {
	PayloadID      types.PayloadID `json:"payload_id"`
	Labels         []string        `json:"labels"`
	AppliedRuleIDs []types.RuleID  `json:"applied_rule_ids"`
	ProcessedAt    time.Time       `json:"processed_at"`
}

// auditRecord is one line of the daily payload JSONL file.
type auditRecord struct {
	PayloadID  types.PayloadID `json:"payload_id"`
	UserID     types.UserID    `json:"user_id"`
	ReceivedAt string          `json:"received_at"`
	Labels     []string        `json:"labels"`
	RuleIDs    []types.RuleID  `json:"rule_ids"`
	Payload    types.Payload   `json:"payload"`
}

// Process classifies body against the user's active rules, stores the
// payload with its labels and notifies live statistics subscribers.
// With single set only the best match is applied and stored.
func (s *LabelService) Process(ctx context.Context, user types.UserID, body []byte, single bool) (ProcessResult, error) {
	record, compact, err := s.decodeRecord(body)
	if err != nil {
		s.metrics.RecordFailure(metrics.OutcomeRejected)
		return ProcessResult{}, err
	}

	if err := s.store.EnsureUser(ctx, user); err != nil {
		s.metrics.RecordFailure(metrics.OutcomeFailed)
		return ProcessResult{}, err
	}
	active, err := s.store.ListActiveRules(ctx, user)
	if err != nil {
		s.metrics.RecordFailure(metrics.OutcomeFailed)
		return ProcessResult{}, err
	}

	_, span := tracing.Tracer().Start(ctx, "labelkeeper.classify", trace.WithAttributes(
		attribute.Int("labelkeeper.rules_evaluated", len(active)),
		attribute.Bool("labelkeeper.single_label", single),
	))
	start := time.Now()
	result := s.engine.Classify(record, active, single)
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("labelkeeper.labels", len(result.Labels)))
	span.End()

	// Determine received_at once; the audit file follows the same date
	// even if the request spans midnight.
	receivedAt := s.now().UTC()
	payload := types.ProcessedPayload{
		ID:         types.NewPayloadID(),
		UserID:     user,
		Body:       compact,
		ReceivedAt: receivedAt,
		Matches:    result.Matches,
	}
	if err := s.store.SavePayload(ctx, payload); err != nil {
		s.metrics.RecordFailure(metrics.OutcomeFailed)
		return ProcessResult{}, err
	}
	s.metrics.RecordPayload(result.Labels, len(active), elapsed)

	logger := logging.FromContext(ctx)
	logger.Debug("payload classified",
		"payload_id", payload.ID,
		"user_id", user,
		"labels", result.Labels,
		"rules_evaluated", len(active),
		"single", single,
	)

	// Database is source of truth, JSONL is a debugging aid
	if err := s.appendAudit(payload, result.Labels, result.RuleIDs); err != nil {
		logger.Warn("payload audit write failed", "payload_id", payload.ID, "error", err)
	}
	s.publishStatsBestEffort(ctx, user)

	return ProcessResult{
		PayloadID:      payload.ID,
		Labels:         result.Labels,
		AppliedRuleIDs: result.RuleIDs,
		ProcessedAt:    receivedAt,
	}, nil
}

// ExtractKeys lists the sorted distinct key paths of a sample object.
func (s *LabelService) ExtractKeys(body []byte) ([]string, error) {
	sample, _, err := s.decodeRecord(body)
	if err != nil {
		return nil, err
	}
	return s.engine.Keys(sample), nil
}

// decodeRecord parses body into a Value and returns a compacted copy of the
// raw bytes for storage. Only JSON objects are accepted.
func (s *LabelService) decodeRecord(body []byte) (types.Value, types.Payload, error) {
	if len(body) > types.MaxPayloadSize {
		return types.Value{}, nil, types.ErrPayloadTooLarge
	}
	record, err := types.ParseJSON(body)
	if err != nil {
		return types.Value{}, nil, fmt.Errorf("%w: %v", types.ErrPayloadNotObject, err)
	}
	if record.Kind() != types.KindObject {
		return types.Value{}, nil, types.ErrPayloadNotObject
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return types.Value{}, nil, fmt.Errorf("%w: %v", types.ErrPayloadNotObject, err)
	}
	return record, types.Payload(buf.Bytes()), nil
}

// appendAudit writes one JSONL line to the daily audit file.
// Best-effort: JSONL may lack payloads if the write fails.
func (s *LabelService) appendAudit(p types.ProcessedPayload, labels []string, ruleIDs []types.RuleID) error {
	if s.auditDir == "" {
		return nil
	}

	filename := filepath.Join(s.auditDir, p.ReceivedAt.Format("2006-01-02")+".jsonl")
	mu := s.getJSONLMutex(filename)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(auditRecord{
		PayloadID:  p.ID,
		UserID:     p.UserID,
		ReceivedAt: types.FormatTimestamp(p.ReceivedAt),
		Labels:     labels,
		RuleIDs:    ruleIDs,
		Payload:    p.Body,
	})
}

// publishStatsBestEffort pushes a fresh statistics snapshot to the user's
// live subscribers. The payload is already committed, so failures are only
// logged.
func (s *LabelService) publishStatsBestEffort(ctx context.Context, user types.UserID) {
	if s.hub.Subscribers(user) == 0 {
		return
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bestEffortTimeout)
	defer cancel()

	stats, err := s.store.Statistics(publishCtx, types.StatsFilter{UserID: user})
	if err != nil {
		logging.FromContext(ctx).Warn("statistics snapshot failed", "user_id", user, "error", err)
		return
	}
	s.hub.Publish(user, stats)
}
