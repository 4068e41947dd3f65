package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/AfshinJalili/rentabili/libs/kafka"
	"github.com/google/uuid"
)

const (
	TypeUserRegistered = "user.registered"
	TypeSessionStarted = "session.started"
	TypeSessionRotated = "session.rotated"
	TypeSessionRevoked = "session.revoked"

	eventVersion = 1
)

// AuthEvent is published for every credential and session change. It
// never carries token material.
type AuthEvent struct {
	kafka.Envelope
	UserID    string `json:"user_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type Emitter interface {
	Emit(ctx context.Context, eventType string, userID uuid.UUID, meta Meta)
}

type Meta struct {
	RequestID string
	IP        string
	UserAgent string
}

// KafkaEmitter publishes best effort: failures are logged, never returned.
type KafkaEmitter struct {
	Publisher kafka.Publisher
	Topic     string
	Logger    *slog.Logger
	Timeout   time.Duration
	now       func() time.Time
}

func NewKafkaEmitter(publisher kafka.Publisher, topic string, logger *slog.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		Publisher: publisher,
		Topic:     topic,
		Logger:    logger,
		Timeout:   2 * time.Second,
		now:       time.Now,
	}
}

func (e *KafkaEmitter) Emit(ctx context.Context, eventType string, userID uuid.UUID, meta Meta) {
	env, err := kafka.NewEnvelope(eventType, eventVersion, meta.RequestID, e.now())
	if err != nil {
		e.Logger.Error("build event envelope", slog.String("event_type", eventType), slog.Any("error", err))
		return
	}
	event := AuthEvent{Envelope: env, IP: meta.IP, UserAgent: meta.UserAgent}
	if userID != uuid.Nil {
		event.UserID = userID.String()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.Timeout)
	defer cancel()
	if _, _, err := e.Publisher.PublishJSON(ctx, e.Topic, event.UserID, event); err != nil {
		e.Logger.Warn("auth event dropped",
			slog.String("event_type", eventType),
			slog.String("event_id", env.EventID),
			slog.Any("error", err),
		)
	}
}

// Noop is used when no brokers are configured.
type Noop struct{}

func (Noop) Emit(context.Context, string, uuid.UUID, Meta) {}
