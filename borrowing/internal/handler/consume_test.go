package handler_test

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akhmetow/borrowing-service/borrowing/internal/handler"
)

type fakeSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg)
}
func (s *fakeSession) Context() context.Context { return s.ctx }

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "payment-results" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumer_SetupIsReentrant(t *testing.T) {
	t.Parallel()
	consumer := handler.NewConsumer(func(context.Context, string, bool) error { return nil },
		zap.NewExample())
	sess := &fakeSession{ctx: context.Background()}

	// sarama calls Setup again on every rebalance
	require.NoError(t, consumer.Setup(sess))
	require.NoError(t, consumer.Setup(sess))
	require.NoError(t, consumer.Cleanup(sess))
}

func TestConsumer_ConsumeClaim(t *testing.T) {
	t.Parallel()

	type call struct {
		sessionID string
		succeeded bool
	}
	var calls []call
	consumer := handler.NewConsumer(func(_ context.Context, sessionID string, succeeded bool) error {
		calls = append(calls, call{sessionID: sessionID, succeeded: succeeded})
		return nil
	}, zap.NewExample())

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Value: []byte(`{"sessionId":"sess_1","status":"paid"}`)}
	claim.messages <- &sarama.ConsumerMessage{Value: []byte(`{"sessionId":"sess_2","status":"failed"}`)}
	claim.messages <- &sarama.ConsumerMessage{Value: []byte(`not json`)}
	close(claim.messages)

	sess := &fakeSession{ctx: context.Background()}
	require.NoError(t, consumer.ConsumeClaim(sess, claim))

	require.Equal(t, []call{
		{sessionID: "sess_1", succeeded: true},
		{sessionID: "sess_2", succeeded: false},
	}, calls)
	// the garbage message is acked too, it will never parse
	require.Len(t, sess.marked, 3)
}
