package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/config"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: false,
	}
}

// KafkaPublisher forwards bus events to a topic. Publishing never blocks the
// request path: events are buffered and written by a single worker, and a full
// buffer drops the event. The circuit breaker stops hammering an unavailable
// cluster; events rejected while it is open are dropped and counted.
type KafkaPublisher struct {
	writer  MessageWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *zap.Logger
	metrics *metrics.Collector
	events  chan Event
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewKafkaPublisher(writer MessageWriter, bufferSize int, log *zap.Logger, m *metrics.Collector) *KafkaPublisher {
	p := &KafkaPublisher{
		writer:  writer,
		log:     log,
		metrics: m,
		events:  make(chan Event, bufferSize),
		done:    make(chan struct{}),
	}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-events",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("event stream breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	go p.worker()
	return p
}

// Register subscribes the publisher to every event on bus.
func (p *KafkaPublisher) Register(bus *Bus) {
	bus.SubscribeAll(p.Handle)
}

func (p *KafkaPublisher) Handle(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.metrics.EventsDropped.Inc()
		p.log.Warn("event stream closed, dropping event",
			zap.String("event_type", string(e.Type)),
			zap.String("appointment_id", e.Key()),
		)
		return nil
	}
	select {
	case p.events <- e:
	default:
		p.metrics.EventsDropped.Inc()
		p.log.Warn("event stream buffer full, dropping event",
			zap.String("event_type", string(e.Type)),
			zap.String("appointment_id", e.Key()),
		)
	}
	return nil
}

// Close stops accepting events, drains the buffer, and closes the writer.
// Events handled after Close are dropped.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(10 * time.Second):
		p.log.Warn("event stream shutdown timed out; some events may be lost")
	}
	return p.writer.Close()
}

func (p *KafkaPublisher) worker() {
	defer close(p.done)
	for e := range p.events {
		if err := p.write(e); err != nil {
			p.metrics.EventPublishFails.Inc()
			p.log.Error("failed to publish event",
				zap.String("event_type", string(e.Type)),
				zap.String("appointment_id", e.Key()),
				zap.Error(err),
			)
		}
	}
}

func (p *KafkaPublisher) write(e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return struct{}{}, p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(e.Key()),
			Value: value,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "event_id", Value: []byte(e.ID.String())},
			},
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(errors.New("event stream circuit open"), err)
	}
	return err
}
