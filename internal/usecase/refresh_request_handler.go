package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	pkgkafka "KeyZones/pkg/kafka"
	applogger "KeyZones/pkg/logger"
)

// Trigger starts a batch without waiting for it.
type Trigger interface {
	Trigger(ctx context.Context, startDate, endDate string) (uint64, error)
}

// RefreshRequestHandler turns refresh commands read from Kafka into batches.
type RefreshRequestHandler struct {
	topic    string
	trigger  Trigger
	validate *validator.Validate
	metrics  domrepo.Metrics
	l        *applogger.Logger
}

func NewRefreshRequestHandler(topic string, trigger Trigger, metrics domrepo.Metrics, l *applogger.Logger) *RefreshRequestHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &RefreshRequestHandler{topic: topic, trigger: trigger, validate: validator.New(), metrics: metrics, l: l}
}

func (h *RefreshRequestHandler) Topic() string { return h.topic }

// incoming message schema: {start_date, end_date}; an empty body refreshes
// with open bounds.
func (h *RefreshRequestHandler) Handle(ctx context.Context, b []byte) error {
	var cmd models.RefreshCommand
	if len(b) > 0 {
		if err := json.Unmarshal(b, &cmd); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			// not retryable
			h.l.Warn("refresh command dropped", applogger.Error(err))
			return nil
		}
	}
	if err := defaults.Set(&cmd); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if err := h.validate.Struct(cmd); err != nil {
		h.metrics.RecordError("consumer_validate")
		h.l.Warn("refresh command dropped", applogger.Error(err))
		return nil
	}

	id, err := h.trigger.Trigger(ctx, cmd.StartDate, cmd.EndDate)
	if err != nil {
		h.metrics.RecordError("consumer_trigger")
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	h.l.Info("refresh triggered from kafka", applogger.Uint64("request_id", id), applogger.String("topic", h.topic))
	return nil
}

var _ pkgkafka.MessageHandler = (*RefreshRequestHandler)(nil)
