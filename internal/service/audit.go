package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/observability"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
	"github.com/spec-kit/ombudsman-service/internal/repository"
	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

const (
	defaultTimelineLimit = 50
	maxTimelineLimit     = 200
)

// AuditEntry is one mutation to append to the trail.
type AuditEntry struct {
	EntityType string
	EntityID   string
	Action     string
	Caller     domain.Caller
	Old        any
	New        any
}

// AuditRecorder appends audit rows and security events. Write failures are
// logged and counted, never returned.
type AuditRecorder struct {
	logs     repository.AuditRepository
	security repository.SecurityEventRepository
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewAuditRecorder wires the recorder.
func NewAuditRecorder(logs repository.AuditRepository, security repository.SecurityEventRepository, logger *zap.Logger, metrics *observability.Metrics) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRecorder{logs: logs, security: security, logger: logger, metrics: metrics}
}

// Record appends one entry. It runs outside any caller transaction so a
// failed insert cannot poison the business write.
func (r *AuditRecorder) Record(ctx context.Context, e AuditEntry) {
	entry := &domain.AuditLog{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		UserID:     e.Caller.ActorID(),
		OldValue:   r.encode(e.Old),
		NewValue:   r.encode(e.New),
		IP:         nonEmpty(e.Caller.IP),
		UserAgent:  nonEmpty(e.Caller.UserAgent),
	}
	if err := r.logs.Create(persistence.Detach(ctx), entry); err != nil {
		r.metrics.Inc(observability.CounterAuditWriteFailures)
		r.logger.Error("audit write failed",
			zap.String("entity_type", e.EntityType),
			zap.String("entity_id", e.EntityID),
			zap.String("action", e.Action),
			zap.Error(err))
	}
}

// SecurityEvent describes an auth or abuse signal.
type SecurityEvent struct {
	Type      string
	UserID    *string
	IP        string
	Path      string
	UserAgent string
	Details   map[string]any
}

// RecordSecurity appends a security event with the same failure policy as Record.
func (r *AuditRecorder) RecordSecurity(ctx context.Context, e SecurityEvent) {
	event := &domain.SecurityEvent{
		Type:      e.Type,
		UserID:    e.UserID,
		IP:        nonEmpty(e.IP),
		Path:      nonEmpty(e.Path),
		UserAgent: nonEmpty(e.UserAgent),
	}
	if e.Details != nil {
		event.Details = r.encode(e.Details)
	}
	if err := r.security.Create(persistence.Detach(ctx), event); err != nil {
		r.metrics.Inc(observability.CounterAuditWriteFailures)
		r.logger.Error("security event write failed", zap.String("type", e.Type), zap.Error(err))
	}
}

func (r *AuditRecorder) encode(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("audit value not encodable", zap.Error(err))
		return nil
	}
	return data
}

// TimelineEntry is an audit row rendered for display.
type TimelineEntry struct {
	ID        string
	Action    string
	ActorType string
	ActorID   *string
	ActorName *string
	ActorRole *string
	Summary   string
	Before    json.RawMessage
	After     json.RawMessage
	CreatedAt time.Time
}

// TimelinePage is one page of a trail, newest first.
type TimelinePage struct {
	Entries    []TimelineEntry
	NextCursor string
}

// Trail returns entries for an entity newest-first. cursor is the opaque
// NextCursor of the previous page.
func (r *AuditRecorder) Trail(ctx context.Context, entityType, entityID, cursor string, limit int) (*TimelinePage, error) {
	if limit <= 0 {
		limit = defaultTimelineLimit
	}
	if limit > maxTimelineLimit {
		limit = maxTimelineLimit
	}
	var after *repository.AuditCursor
	if cursor != "" {
		decoded, err := DecodeAuditCursor(cursor)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid cursor", nil)
		}
		after = decoded
	}

	logs, err := r.logs.ListByEntity(ctx, entityType, entityID, after, limit)
	if err != nil {
		return nil, err
	}

	page := &TimelinePage{Entries: make([]TimelineEntry, 0, len(logs))}
	for _, log := range logs {
		actorType := "system"
		if log.UserID != nil {
			actorType = "user"
		}
		page.Entries = append(page.Entries, TimelineEntry{
			ID:        log.ID,
			Action:    log.Action,
			ActorType: actorType,
			ActorID:   log.UserID,
			ActorName: log.UserName,
			ActorRole: log.UserRole,
			Summary:   Summarize(log.Action, log.OldValue, log.NewValue),
			Before:    log.OldValue,
			After:     log.NewValue,
			CreatedAt: log.CreatedAt,
		})
	}
	if len(logs) == limit {
		last := logs[len(logs)-1]
		page.NextCursor = EncodeAuditCursor(repository.AuditCursor{CreatedAt: last.CreatedAt, Seq: last.Seq})
	}
	return page, nil
}

// EncodeAuditCursor renders a cursor as an opaque token.
func EncodeAuditCursor(c repository.AuditCursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + strconv.FormatInt(c.Seq, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeAuditCursor parses a token produced by EncodeAuditCursor.
func DecodeAuditCursor(token string) (*repository.AuditCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	at, seq, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, fmt.Errorf("malformed cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return nil, err
	}
	return &repository.AuditCursor{CreatedAt: createdAt, Seq: n}, nil
}

// Summarize renders a known action as one readable line. Unknown actions
// come back verbatim; malformed values read as empty objects.
func Summarize(action string, oldValue, newValue json.RawMessage) string {
	before := decodeObject(oldValue)
	after := decodeObject(newValue)

	switch action {
	case "cases.set_status":
		return fmt.Sprintf("Status: %s → %s", field(before, "status", "-"), field(after, "status", "-"))
	case "cases.set_priority":
		return fmt.Sprintf("Priority: %s → %s", field(before, "priority", "-"), field(after, "priority", "-"))
	case "cases.transfer_queue":
		return fmt.Sprintf("Queue changed: %s → %s", field(before, "queue_id", "-"), field(after, "queue_id", "-"))
	case "cases.transfer_secretariat":
		return fmt.Sprintf("Department changed: %s → %s", field(before, "secretariat_id", "-"), field(after, "secretariat_id", "-"))
	case "cases.assign_user":
		return fmt.Sprintf("Assignee changed: %s → %s", field(before, "assigned_to", "none"), field(after, "assigned_to", "none"))
	case "messages.send_external":
		return "Message sent to citizen"
	case "messages.add_internal_note":
		return "Internal note added"
	case "messages.resend":
		return "Message resent"
	default:
		return action
	}
}

func decodeObject(raw json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func field(obj map[string]any, key, fallback string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return fallback
		}
		return t
	default:
		return fmt.Sprint(t)
	}
}
