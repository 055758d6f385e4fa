package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ledgerlink/accounts/internal/mq"
	"github.com/ledgerlink/accounts/types"
	"github.com/sirupsen/logrus"
)

// Account lifecycle event types.
const (
	EventUserRegistered = "user.registered"
	EventUserUpdated    = "user.updated"
	EventUserDeleted    = "user.deleted"
)

// EventPublisher sends a payload to a named channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// AccountEvent is the payload published after a committed account change.
type AccountEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	Email      string    `json:"email,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// publish emits an event for user. Failures are logged and never undo the
// write that triggered them.
func (s *AccountService) publish(ctx context.Context, eventType string, user types.User) {
	if s.events == nil {
		return
	}
	event := AccountEvent{
		Type:       eventType,
		UserID:     user.ID,
		Email:      user.Email,
		OccurredAt: s.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Error("encode account event failed")
		return
	}
	id, err := s.events.Publish(ctx, s.eventChannel, data, map[string]string{
		mq.AttrEventType: eventType,
		mq.AttrUserID:    user.ID,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": eventType,
			"user_id":    user.ID,
		}).Warn("publish account event failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"event_type": eventType,
		"user_id":    user.ID,
		"message_id": id,
	}).Debug("account event published")
}
