package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

// KafkaWriter is the subset of *kafka.Writer the producer uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	QueueSize    int
	WriteTimeout time.Duration
}

// Producer publishes events to one Kafka topic from a background loop.
type Producer struct {
	writer       KafkaWriter
	events       chan Event
	logger       *zap.Logger
	writeTimeout time.Duration
	closeChan    chan struct{}
	done         chan struct{}
}

// NewProducer starts a producer. The topic is not created here; see
// EnsureTopic.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("events: topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(w, cfg, logger), nil
}

func newProducer(w KafkaWriter, cfg ProducerConfig, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	p := &Producer{
		writer:       w,
		events:       make(chan Event, cfg.QueueSize),
		logger:       logger.Named("kafka_producer"),
		writeTimeout: cfg.WriteTimeout,
		closeChan:    make(chan struct{}),
		done:         make(chan struct{}),
	}
	go p.eventLoop()
	return p
}

// EnsureTopic creates the topic on the first broker. An existing topic is
// not an error.
func EnsureTopic(ctx context.Context, broker, topic string, partitions int, logger *zap.Logger) error {
	conn, err := (&kafka.Dialer{}).DialContext(ctx, "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}); err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.String("topic", topic), zap.Error(err))
	}
	return nil
}

// Publish queues e. A full queue drops the event with a warning.
func (p *Producer) Publish(_ context.Context, e Event) {
	select {
	case p.events <- e:
	default:
		p.logger.Warn("event queue full, dropping event",
			zap.String("event_type", string(e.Type)),
			zap.String("tenant_id", e.TenantID.String()),
			zap.String("subject_id", e.SubjectID.String()))
	}
}

func (p *Producer) eventLoop() {
	defer close(p.done)
	for {
		select {
		case e := <-p.events:
			p.send(e)
		case <-p.closeChan:
			// Flush what is already queued.
			for {
				select {
				case e := <-p.events:
					p.send(e)
				default:
					return
				}
			}
		}
	}
}

func (p *Producer) send(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	p.sendEvent(ctx, e)
}

func (p *Producer) sendEvent(ctx context.Context, e Event) {
	value, err := jsonMarshal(e)
	if err != nil {
		p.logger.Error("failed to serialize event",
			zap.Error(err),
			zap.String("event_id", e.ID.String()))
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Key()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		p.logger.Error("failed to produce event",
			zap.Error(err),
			zap.String("event_type", string(e.Type)),
			zap.String("event_id", e.ID.String()))
	}
}

// Close flushes queued events and closes the writer.
func (p *Producer) Close() {
	close(p.closeChan)
	<-p.done
	if err := p.writer.Close(); err != nil {
		p.logger.Error("failed to close kafka writer", zap.Error(err))
	}
}
