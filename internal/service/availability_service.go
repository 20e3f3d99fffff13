package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/events"
	"github.com/dmehra2102/prod-golang-projects/ashram/pkg/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/dmehra2102/prod-golang-projects/ashram/internal/service")

// AvailabilityService answers "is this interval free" and "which slots are
// free" for a practitioner's day. Both read the same blocking appointments
// and apply the same overlap test, so a slot is unavailable exactly when a
// booking of that slot would be rejected.
type AvailabilityService struct {
	repo     appointment.Repository
	cache    cache.Store
	cacheTTL time.Duration
	loc      *time.Location
	log      *zap.Logger
	metrics  *metrics.Collector
}

func NewAvailabilityService(
	repo appointment.Repository,
	store cache.Store,
	cacheTTL time.Duration,
	loc *time.Location,
	log *zap.Logger,
	m *metrics.Collector,
) *AvailabilityService {
	return &AvailabilityService{repo: repo, cache: store, cacheTTL: cacheTTL, loc: loc, log: log, metrics: m}
}

// FindConflicts returns the practitioner's blocking appointments on date that
// overlap [start, end), ignoring excludeID. Store errors are returned as-is.
func (s *AvailabilityService) FindConflicts(
	ctx context.Context,
	practitionerID uuid.UUID,
	date, start, end time.Time,
	excludeID *uuid.UUID,
) ([]*appointment.Appointment, error) {
	ctx, span := tracer.Start(ctx, "AvailabilityService.FindConflicts")
	defer span.End()
	span.SetAttributes(attribute.String("guruji.id", practitionerID.String()))

	if practitionerID == uuid.Nil {
		return nil, appointment.ErrPractitionerRequired
	}
	if err := appointment.ValidateInterval(date, start, end, s.loc); err != nil {
		return nil, err
	}

	existing, err := s.loadDay(ctx, practitionerID, date)
	if err != nil {
		return nil, err
	}
	return appointment.Conflicts(existing, start, end, excludeID), nil
}

// GetAvailableSlots lists fixed-length slots across business hours of date.
// slotMinutes of 0 selects the default length.
func (s *AvailabilityService) GetAvailableSlots(
	ctx context.Context,
	practitionerID uuid.UUID,
	date time.Time,
	slotMinutes int,
) ([]appointment.Slot, error) {
	ctx, span := tracer.Start(ctx, "AvailabilityService.GetAvailableSlots")
	defer span.End()

	if practitionerID == uuid.Nil {
		return nil, appointment.ErrPractitionerRequired
	}
	minutes, err := appointment.ValidateSlotMinutes(slotMinutes)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("guruji.id", practitionerID.String()),
		attribute.Int("slot.minutes", minutes),
	)

	key := fmt.Sprintf("slots:%s:%s:%d", practitionerID, dayLabel(date), minutes)
	if slots, ok := s.cachedSlots(ctx, key); ok {
		return slots, nil
	}

	// The generation is taken before the read; a booking that commits in
	// between bumps it and the result below is served but not cached.
	tag := dayTag(practitionerID, date)
	gen, genErr := s.cache.Generation(ctx, tag)
	if genErr != nil {
		s.log.Warn("slot cache generation read failed", zap.String("tag", tag), zap.Error(genErr))
	}

	existing, err := s.loadDay(ctx, practitionerID, date)
	if err != nil {
		return nil, err
	}
	slots := appointment.GenerateSlots(practitionerID, date, minutes, s.loc, existing)

	if genErr == nil {
		s.storeSlots(ctx, key, tag, gen, slots)
	}
	return slots, nil
}

func (s *AvailabilityService) storeSlots(ctx context.Context, key, tag string, gen uint64, slots []appointment.Slot) {
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	stored, err := s.cache.SetIfGeneration(ctx, key, raw, s.cacheTTL, tag, gen)
	if err != nil {
		s.log.Warn("failed to cache slots", zap.String("key", key), zap.Error(err))
		return
	}
	if !stored {
		s.metrics.SlotCacheRequests.WithLabelValues("stale").Inc()
	}
}

func (s *AvailabilityService) loadDay(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	dayStart, dayEnd := appointment.DayBounds(date, s.loc)
	existing, err := s.repo.FindForPractitionerDay(ctx, practitionerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("loading practitioner schedule: %w", err)
	}
	return existing, nil
}

func (s *AvailabilityService) cachedSlots(ctx context.Context, key string) ([]appointment.Slot, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.SlotCacheRequests.WithLabelValues("error").Inc()
		s.log.Warn("slot cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		s.metrics.SlotCacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	var slots []appointment.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		s.metrics.SlotCacheRequests.WithLabelValues("error").Inc()
		return nil, false
	}
	s.metrics.SlotCacheRequests.WithLabelValues("hit").Inc()
	return slots, true
}

// Register drops cached slots whenever an appointment write touches a
// practitioner's day, including the day an appointment moved away from.
func (s *AvailabilityService) Register(bus *events.Bus) {
	bus.SubscribeAll(s.invalidate)
}

func (s *AvailabilityService) invalidate(ctx context.Context, e events.Event) error {
	var tags []string
	if id := e.Appointment.GurujiID; id != nil {
		tags = append(tags, dayTag(*id, e.Appointment.Date))
	}
	if e.PreviousGurujiID != nil && e.PreviousDate != nil {
		tags = append(tags, dayTag(*e.PreviousGurujiID, *e.PreviousDate))
	}
	if len(tags) == 0 {
		return nil
	}
	return s.cache.InvalidateTags(ctx, tags...)
}

func dayLabel(date time.Time) string {
	return appointment.CalendarDate(date).Format("2006-01-02")
}

func dayTag(practitionerID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("guruji:%s:%s", practitionerID, dayLabel(date))
}
