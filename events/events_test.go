package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func sampleEvent() Event {
	return New(LeaveSubmitted, uuid.New(), uuid.New(), uuid.New(), map[string]string{"status": "pending"})
}

func TestNewProducer_RequiresBrokersAndTopic(t *testing.T) {
	_, err := NewProducer(ProducerConfig{Topic: "hr"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}}, zap.NewNop())
	assert.Error(t, err)
}

func TestProducer_Publish_DropsWhenQueueFull(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	p := &Producer{
		events: make(chan Event, 1),
		logger: zap.New(core),
	}

	p.Publish(context.Background(), sampleEvent())
	p.Publish(context.Background(), sampleEvent())

	assert.Len(t, p.events, 1)
	assert.Equal(t, 1, recorded.FilterMessage("event queue full, dropping event").Len())
}

func TestProducer_SendEvent(t *testing.T) {
	t.Run("message keyed by tenant and subject", func(t *testing.T) {
		w := new(MockKafkaWriter)
		w.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)
		p := &Producer{writer: w, logger: zaptest.NewLogger(t)}
		e := sampleEvent()

		p.sendEvent(context.Background(), e)

		w.AssertCalled(t, "WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 {
				return false
			}
			var decoded Event
			if err := json.Unmarshal(msgs[0].Value, &decoded); err != nil {
				return false
			}
			return string(msgs[0].Key) == e.Key() &&
				decoded.ID == e.ID &&
				decoded.Type == LeaveSubmitted &&
				string(msgs[0].Headers[0].Value) == string(LeaveSubmitted)
		}))
	})

	t.Run("serialization error is logged", func(t *testing.T) {
		core, recorded := observer.New(zap.ErrorLevel)
		w := new(MockKafkaWriter)
		p := &Producer{writer: w, logger: zap.New(core)}

		old := jsonMarshal
		jsonMarshal = func(any) ([]byte, error) { return nil, errors.New("mock marshal error") }
		defer func() { jsonMarshal = old }()

		p.sendEvent(context.Background(), sampleEvent())

		assert.Equal(t, 1, recorded.FilterMessage("failed to serialize event").Len())
		w.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
	})

	t.Run("write error is logged", func(t *testing.T) {
		core, recorded := observer.New(zap.ErrorLevel)
		w := new(MockKafkaWriter)
		w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("kafka error"))
		p := &Producer{writer: w, logger: zap.New(core)}

		p.sendEvent(context.Background(), sampleEvent())

		assert.Equal(t, 1, recorded.FilterMessage("failed to produce event").Len())
	})
}

func TestProducer_CloseFlushesQueue(t *testing.T) {
	w := new(MockKafkaWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)
	w.On("Close").Return(nil)

	p := newProducer(w, ProducerConfig{QueueSize: 10}, zaptest.NewLogger(t))
	for i := 0; i < 3; i++ {
		p.Publish(context.Background(), sampleEvent())
	}
	p.Close()

	w.AssertNumberOfCalls(t, "WriteMessages", 3)
	w.AssertCalled(t, "Close")
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Publish(context.Background(), sampleEvent())
	r.Publish(context.Background(), New(LeaveApproved, uuid.New(), uuid.New(), uuid.New(), nil))

	require.Len(t, r.Events(), 2)
	assert.Len(t, r.OfType(LeaveApproved), 1)

	r.Reset()
	assert.Empty(t, r.Events())
}
