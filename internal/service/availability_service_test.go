package service

import (
	"context"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAvailableSlots_EmptyDay(t *testing.T) {
	h := newHarness(t)

	slots, err := h.availability.GetAvailableSlots(context.Background(), h.guruji.ID, h.day(), 0)
	require.NoError(t, err)
	require.Len(t, slots, 18)
	for _, s := range slots {
		assert.True(t, s.IsAvailable)
		assert.Equal(t, "2030-03-14", s.Date)
		assert.Equal(t, h.guruji.ID, s.PractitionerID)
	}
	assert.True(t, slots[0].StartTime.Equal(h.at(9, 0)))
	assert.True(t, slots[17].EndTime.Equal(h.at(18, 0)))
}

func TestGetAvailableSlots_MatchesFindConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.book(t, 9, 15, 9, 50)
	h.book(t, 11, 0, 12, 0)
	h.book(t, 16, 59, 17, 1)
	cancelled := h.book(t, 14, 0, 14, 30)
	_, err := h.appointments.CancelAppointment(ctx, cancelled.ID, "", h.staffCaller)
	require.NoError(t, err)

	for _, minutes := range []int{15, 20, 30, 45, 60} {
		slots, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), minutes)
		require.NoError(t, err)

		for _, s := range slots {
			conflicts, err := h.availability.FindConflicts(ctx, h.guruji.ID, h.day(), s.StartTime, s.EndTime, nil)
			require.NoError(t, err)
			assert.Equal(t, len(conflicts) == 0, s.IsAvailable,
				"%d-minute slot at %s", minutes, s.StartTime.In(h.loc).Format("15:04"))
		}
	}
}

func TestGetAvailableSlots_CachedUntilBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), 30)
	require.NoError(t, err)
	second, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), 30)
	require.NoError(t, err)
	assert.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].StartTime.Equal(second[i].StartTime))
		assert.Equal(t, first[i].IsAvailable, second[i].IsAvailable)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SlotCacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SlotCacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1, h.cache.Len())

	h.book(t, 9, 0, 9, 30)
	assert.Zero(t, h.cache.Len(), "booking drops the cached day")

	after, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), 30)
	require.NoError(t, err)
	assert.False(t, after[0].IsAvailable)
}

func TestGetAvailableSlots_RescheduleInvalidatesBothDays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.book(t, 10, 0, 10, 30)
	nextDay := h.day().AddDate(0, 0, 1)
	_, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), 30)
	require.NoError(t, err)
	_, err = h.availability.GetAvailableSlots(ctx, h.guruji.ID, nextDay, 30)
	require.NoError(t, err)
	require.Equal(t, 2, h.cache.Len())

	_, err = h.appointments.Reschedule(ctx, a.ID, &appointment.RescheduleCommand{
		Date:      nextDay,
		StartTime: nextDay.Add(10 * time.Hour),
		EndTime:   nextDay.Add(10*time.Hour + 30*time.Minute),
	}, h.staffCaller)
	require.NoError(t, err)
	assert.Zero(t, h.cache.Len())

	slots, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), 30)
	require.NoError(t, err)
	for _, s := range slots {
		assert.True(t, s.IsAvailable)
	}
}

func TestFindConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.book(t, 10, 0, 10, 30)

	conflicts, err := h.availability.FindConflicts(ctx, h.guruji.ID, h.day(), h.at(10, 15), h.at(10, 45), nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, a.ID, conflicts[0].ID)

	conflicts, err = h.availability.FindConflicts(ctx, h.guruji.ID, h.day(), h.at(10, 15), h.at(10, 45), &a.ID)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = h.availability.FindConflicts(ctx, h.guruji.ID, h.day(), h.at(10, 30), h.at(11, 0), nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	_, err = h.availability.FindConflicts(ctx, uuid.Nil, h.day(), h.at(10, 0), h.at(10, 30), nil)
	assert.ErrorIs(t, err, appointment.ErrPractitionerRequired)

	_, err = h.availability.FindConflicts(ctx, h.guruji.ID, h.day(), h.at(11, 0), h.at(10, 0), nil)
	assert.ErrorIs(t, err, appointment.ErrInvalidInterval)

	_, err = h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), -5)
	assert.ErrorIs(t, err, appointment.ErrInvalidSlotDuration)
}

// interleavingRepo runs each hook once, right after the matching read
// returns and before the caller acts on what it loaded.
type interleavingRepo struct {
	appointment.Repository
	afterRead func()
	afterGet  func()
}

func (r *interleavingRepo) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, err := r.Repository.GetByID(ctx, id)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return a, err
}

func (r *interleavingRepo) FindForPractitionerDay(ctx context.Context, gurujiID uuid.UUID, dayStart, dayEnd time.Time) ([]*appointment.Appointment, error) {
	found, err := r.Repository.FindForPractitionerDay(ctx, gurujiID, dayStart, dayEnd)
	if hook := r.afterRead; hook != nil {
		r.afterRead = nil
		hook()
	}
	return found, err
}

func TestGetAvailableSlots_BookingDuringReadIsNotCached(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.availability.repo = &interleavingRepo{
		Repository: h.appointmentRepo,
		afterRead:  func() { h.book(t, 9, 0, 9, 30) },
	}

	stale, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), 30)
	require.NoError(t, err)
	assert.True(t, stale[0].IsAvailable, "the in-flight read predates the booking")
	assert.Zero(t, h.cache.Len(), "a result read before an invalidation is not cached")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SlotCacheRequests.WithLabelValues("stale")))

	slots, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), 30)
	require.NoError(t, err)
	for _, s := range slots {
		conflicts, err := h.availability.FindConflicts(ctx, h.guruji.ID, h.day(), s.StartTime, s.EndTime, nil)
		require.NoError(t, err)
		assert.Equal(t, len(conflicts) == 0, s.IsAvailable, "slot at %s", s.StartTime.In(h.loc).Format("15:04"))
	}
	assert.False(t, slots[0].IsAvailable)
	assert.Equal(t, 1, h.cache.Len())
}
