package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	applogger "KeyZones/pkg/logger"
)

// MessageProducer is the subset of pkg/kafka.Producer used here.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

var _ domrepo.ResultPublisher = (*KafkaResultPublisher)(nil)

// KafkaResultPublisher emits a BatchCompletedEvent keyed by request id.
type KafkaResultPublisher struct {
	producer MessageProducer
	topic    string
	l        *applogger.Logger
}

func NewKafkaResultPublisher(p MessageProducer, topic string, l *applogger.Logger) *KafkaResultPublisher {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaResultPublisher{producer: p, topic: topic, l: l}
}

func (k *KafkaResultPublisher) Publish(ctx context.Context, m *models.ResultMatrix) error {
	ev := BatchCompleted(m)
	key := []byte(strconv.FormatUint(m.RequestID, 10))
	if err := k.producer.Publish(ctx, k.topic, key, ev); err != nil {
		return fmt.Errorf("publish batch %d to %s: %w", m.RequestID, k.topic, err)
	}
	k.l.Debug("batch event published",
		applogger.String("topic", k.topic),
		applogger.String("event_id", ev.EventID),
		applogger.Uint64("request_id", m.RequestID),
	)
	return nil
}

// BatchCompleted builds the event for a matrix.
func BatchCompleted(m *models.ResultMatrix) models.BatchCompletedEvent {
	v := m.View()
	return models.BatchCompletedEvent{
		EventID:    uuid.NewString(),
		EventType:  models.EventTypeBatchCompleted,
		RequestID:  v.RequestID,
		TraceID:    v.TraceID,
		StartDate:  v.StartDate,
		EndDate:    v.EndDate,
		Total:      v.Total,
		Failed:     v.Failed,
		Results:    v.Results,
		FinishedAt: v.FinishedAt,
		EmittedAt:  time.Now().UTC(),
	}
}
