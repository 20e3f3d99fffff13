package events

import (
	"context"
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Type string

const (
	AppointmentCreated       Type = "appointment.created"
	AppointmentStatusChanged Type = "appointment.status_changed"
	AppointmentCheckedIn     Type = "appointment.checked_in"
	AppointmentCancelled     Type = "appointment.cancelled"
	AppointmentCompleted     Type = "appointment.completed"
	AppointmentRescheduled   Type = "appointment.rescheduled"
)

// TypeForStatus names the event emitted when an appointment enters status.
func TypeForStatus(status appointment.Status) Type {
	switch status {
	case appointment.StatusCheckedIn:
		return AppointmentCheckedIn
	case appointment.StatusCancelled:
		return AppointmentCancelled
	case appointment.StatusCompleted:
		return AppointmentCompleted
	}
	return AppointmentStatusChanged
}

// Event carries a snapshot of the appointment after the change.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	ActorID    uuid.UUID `json:"actor_id"`

	// PreviousStatus is set on status events.
	PreviousStatus appointment.Status `json:"previous_status,omitempty"`
	// PreviousGurujiID and PreviousDate are set on reschedule events.
	PreviousGurujiID *uuid.UUID `json:"previous_guruji_id,omitempty"`
	PreviousDate     *time.Time `json:"previous_date,omitempty"`

	Appointment appointment.Appointment `json:"appointment"`
}

func NewEvent(t Type, a *appointment.Appointment, actorID uuid.UUID, now time.Time) Event {
	return Event{
		ID:          uuid.New(),
		Type:        t,
		OccurredAt:  now.UTC(),
		ActorID:     actorID,
		Appointment: *a,
	}
}

// Key partitions the stream so one appointment's events stay ordered.
func (e Event) Key() string {
	return e.Appointment.ID.String()
}

type Handler func(ctx context.Context, e Event) error

// Publisher is the write side of Bus.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Bus is an in-process pub/sub. Handlers run synchronously on the publishing
// goroutine in subscription order; a failing handler is logged and does not
// stop the others or fail the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]Handler
	all         []Handler
	log         *zap.Logger
	metrics     *metrics.Collector
}

func NewBus(log *zap.Logger, m *metrics.Collector) *Bus {
	return &Bus{
		subscribers: make(map[Type][]Handler),
		log:         log,
		metrics:     m,
	}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[e.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	b.metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			b.log.Error("event handler failed",
				zap.String("event_type", string(e.Type)),
				zap.String("event_id", e.ID.String()),
				zap.String("appointment_id", e.Key()),
				zap.Error(err),
			)
		}
	}
}
