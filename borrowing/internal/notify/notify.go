package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Message struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

// KafkaNotifier publishes operator-facing messages to the notification
// topic. Delivery is best effort from the caller's point of view.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewKafkaNotifier(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		log:      log.Named("notify"),
	}
}

func (n *KafkaNotifier) Notify(_ context.Context, text string) error {
	data, err := json.Marshal(Message{Text: text, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{Topic: n.topic, Value: sarama.StringEncoder(data)}
	if _, _, err := n.producer.SendMessage(msg); err != nil {
		return err
	}
	n.log.Debug("sent", zap.String("text", text))
	return nil
}
