package gormdb

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appoutbox "stayvista/internal/app/outbox"
	"stayvista/internal/infra/outbox"
)

const (
	subjectOutbox    = "outbox"
	claimMaxAttempts = 5
)

// OutboxStore is the SQL-backed outbox queue.
type OutboxStore struct {
	db *gorm.DB
}

func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

func (s *OutboxStore) Add(ctx context.Context, record appoutbox.EventRecord) error {
	headers, err := json.Marshal(record.Headers)
	if err != nil {
		return wrapStoreError(subjectOutbox, "encode_headers", err)
	}
	now := time.Now().UTC()
	m := OutboxModel{
		ID:            record.ID,
		Name:          record.Name,
		Payload:       record.Payload,
		OccurredAt:    record.OccurredAt.UTC(),
		Aggregate:     record.Aggregate,
		Headers:       headers,
		State:         outbox.StateNew,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error
	if err != nil {
		return wrapStoreError(subjectOutbox, "add", err)
	}
	return nil
}

// Claim picks the oldest due message and flips it to CLAIMED with a
// conditional update. A lost race moves on to the next candidate.
func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*outbox.Message, error) {
	for i := 0; i < claimMaxAttempts; i++ {
		now := time.Now().UTC()
		var candidate OutboxModel
		err := s.db.WithContext(ctx).
			Where("state IN ? AND next_attempt_at <= ?", []string{outbox.StateNew, outbox.StateFailed}, now).
			Order("next_attempt_at ASC").
			Take(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, wrapStoreError(subjectOutbox, "claim", err)
		}
		res := s.db.WithContext(ctx).Model(&OutboxModel{}).
			Where("id = ? AND state = ?", candidate.ID, candidate.State).
			Updates(map[string]any{"state": outbox.StateClaimed, "claimed_by": workerID, "claimed_at": now})
		if res.Error != nil {
			return nil, wrapStoreError(subjectOutbox, "claim", res.Error)
		}
		if res.RowsAffected == 1 {
			candidate.State = outbox.StateClaimed
			candidate.ClaimedBy = workerID
			candidate.ClaimedAt = &now
			return candidate.toMessage()
		}
	}
	return nil, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&OutboxModel{}).Where("id = ?", id).
		Updates(map[string]any{"state": outbox.StateSent, "sent_at": time.Now().UTC()}).Error
	if err != nil {
		return wrapStoreError(subjectOutbox, "mark_sent", err)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	err := s.db.WithContext(ctx).Model(&OutboxModel{}).Where("id = ?", id).
		Updates(map[string]any{
			"state":           outbox.StateFailed,
			"next_attempt_at": next.UTC(),
			"last_error":      errMsg,
			"attempts":        gorm.Expr("attempts + 1"),
		}).Error
	if err != nil {
		return wrapStoreError(subjectOutbox, "mark_failed", err)
	}
	return nil
}

func (m OutboxModel) toMessage() (*outbox.Message, error) {
	var headers map[string]string
	if len(m.Headers) > 0 {
		if err := json.Unmarshal(m.Headers, &headers); err != nil {
			return nil, wrapStoreError(subjectOutbox, "decode_headers", err)
		}
	}
	msg := &outbox.Message{
		ID:          m.ID,
		Name:        m.Name,
		Payload:     m.Payload,
		OccurredAt:  m.OccurredAt.UTC(),
		Aggregate:   m.Aggregate,
		Headers:     headers,
		State:       m.State,
		Attempts:    m.Attempts,
		NextAttempt: m.NextAttemptAt.UTC(),
		ClaimedBy:   m.ClaimedBy,
		LastError:   m.LastError,
	}
	if m.ClaimedAt != nil {
		msg.ClaimedAt = m.ClaimedAt.UTC()
	}
	if m.SentAt != nil {
		msg.SentAt = m.SentAt.UTC()
	}
	return msg, nil
}

var (
	_ appoutbox.Outbox = (*OutboxStore)(nil)
	_ outbox.Queue     = (*OutboxStore)(nil)
)
