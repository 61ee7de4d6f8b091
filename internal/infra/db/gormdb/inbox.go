package gormdb

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const subjectInbox = "inbox"

// InboxStore deduplicates consumed events per consumer.
type InboxStore struct {
	db       *gorm.DB
	consumer string
}

func NewInboxStore(db *gorm.DB, consumer string) *InboxStore {
	return &InboxStore{db: db, consumer: consumer}
}

func (s *InboxStore) Seen(ctx context.Context, eventID string) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&InboxModel{
		EventID:    eventID,
		Consumer:   s.consumer,
		ReceivedAt: time.Now().UTC(),
	})
	if res.Error != nil {
		return false, wrapStoreError(subjectInbox, "seen", res.Error)
	}
	return res.RowsAffected == 0, nil
}

func (s *InboxStore) Forget(ctx context.Context, eventID string) error {
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND consumer = ?", eventID, s.consumer).
		Delete(&InboxModel{}).Error
	if err != nil {
		return wrapStoreError(subjectInbox, "forget", err)
	}
	return nil
}
