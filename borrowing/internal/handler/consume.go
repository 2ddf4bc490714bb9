package handler

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/akhmetow/borrowing-service/borrowing/internal/model"
)

type markPaymentResult func(ctx context.Context, sessionID string, succeeded bool) error

// Consumer delivers processor session results arriving on the payment
// results topic.
type Consumer struct {
	markPaymentHandler markPaymentResult
	log                *zap.Logger
}

func NewConsumer(markPayment markPaymentResult, log *zap.Logger) *Consumer {
	return &Consumer{
		markPaymentHandler: markPayment,
		log:                log.Named("consumer"),
	}
}

// Setup runs at the start of every session, including rebalances, so it
// must stay re-entrant.
func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			var msg model.PaymentResultMessage
			if err := json.Unmarshal(message.Value, &msg); err != nil {
				consumer.log.Error("", zap.Error(err))
				session.MarkMessage(message, "")
				continue
			}

			if err := consumer.markPaymentHandler(context.Background(), msg.SessionID, msg.Status == model.SessionStatusPaid); err != nil {
				consumer.log.Error("consumer.markPaymentHandler", zap.Error(err))
				continue
			}

			consumer.log.Debug("Message claimed:", zap.String("value", string(message.Value)), zap.Time("timestamp", message.Timestamp), zap.String("topic", message.Topic))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
