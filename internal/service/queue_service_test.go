package service

import (
	"context"
	"testing"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/consultation"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/queue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) checkIn(t *testing.T, a *appointment.Appointment) {
	t.Helper()
	_, err := h.appointments.CheckIn(context.Background(), a.CheckInCode, h.staffCaller)
	require.NoError(t, err)
}

func TestQueue_CheckInEnqueuesAndCallNextHonorsPriority(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	normal := h.book(t, 10, 0, 10, 30)
	urgent := h.book(t, 11, 0, 11, 30)
	require.NoError(t, h.db.Model(urgent).Update("priority", appointment.PriorityUrgent).Error)
	urgent.Priority = appointment.PriorityUrgent

	h.checkIn(t, normal)
	h.checkIn(t, urgent)

	entries, err := h.queue.ListQueue(ctx, h.guruji.ID, h.day(), h.gurujiCaller)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, urgent.ID, entries[0].AppointmentID)
	assert.Equal(t, 2, entries[0].Position)

	called, err := h.queue.CallNext(ctx, h.guruji.ID, h.day(), h.gurujiCaller)
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, called.AppointmentID)
	assert.Equal(t, queue.StatusCalled, called.Status)

	called, err = h.queue.CallNext(ctx, h.guruji.ID, h.day(), h.staffCaller)
	require.NoError(t, err)
	assert.Equal(t, normal.ID, called.AppointmentID)

	_, err = h.queue.CallNext(ctx, h.guruji.ID, h.day(), h.staffCaller)
	assert.ErrorIs(t, err, queue.ErrQueueEmpty)
}

func TestQueue_FollowsAppointmentLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	served := h.book(t, 10, 0, 10, 30)
	withdrawn := h.book(t, 11, 0, 11, 30)
	h.checkIn(t, served)
	h.checkIn(t, withdrawn)

	session, err := h.consultations.Start(ctx, served.ID, h.gurujiCaller)
	require.NoError(t, err)
	_, err = h.consultations.End(ctx, session.ID, &consultation.EndSessionCommand{Notes: "calm"}, h.gurujiCaller)
	require.NoError(t, err)

	_, err = h.appointments.CancelAppointment(ctx, withdrawn.ID, "left early", h.staffCaller)
	require.NoError(t, err)

	servedEntry, err := h.queueRepo.GetByAppointmentID(ctx, served.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusServed, servedEntry.Status)
	assert.NotNil(t, servedEntry.ServedAt)

	withdrawnEntry, err := h.queueRepo.GetByAppointmentID(ctx, withdrawn.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusSkipped, withdrawnEntry.Status)
}

func TestQueue_SkipAndAccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.book(t, 10, 0, 10, 30)
	h.checkIn(t, a)
	entry, err := h.queueRepo.GetByAppointmentID(ctx, a.ID)
	require.NoError(t, err)

	otherGuruji := Caller{ID: uuid.New(), Role: domain.RoleGuruji}
	_, err = h.queue.ListQueue(ctx, h.guruji.ID, h.day(), otherGuruji)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.queue.Skip(ctx, entry.ID, h.seekerCaller)
	assert.ErrorIs(t, err, ErrForbidden)

	skipped, err := h.queue.Skip(ctx, entry.ID, h.gurujiCaller)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusSkipped, skipped.Status)

	_, err = h.queue.Skip(ctx, entry.ID, h.gurujiCaller)
	assert.ErrorIs(t, err, queue.ErrInvalidEntryState)

	_, err = h.queue.Enqueue(ctx, a)
	assert.ErrorIs(t, err, queue.ErrAlreadyQueued)
}

func TestQueue_UnassignedCheckInIsNotQueued(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.appointments.CreateAppointment(ctx, &appointment.CreateAppointmentCommand{
		UserID: h.seeker.ID, Date: h.day(), StartTime: h.at(10, 0), EndTime: h.at(10, 30),
	}, h.staffCaller)
	require.NoError(t, err)
	h.checkIn(t, a)

	_, err = h.queueRepo.GetByAppointmentID(ctx, a.ID)
	assert.ErrorIs(t, err, queue.ErrEntryNotFound)

	_, err = h.queue.Enqueue(ctx, a)
	assert.ErrorIs(t, err, queue.ErrNoPractitioner)
}

func TestQueue_NoShowSkipsEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.book(t, 10, 0, 10, 30)
	h.checkIn(t, a)
	_, err := h.appointments.UpdateStatus(ctx, a.ID, appointment.StatusNoShow, h.staffCaller)
	require.NoError(t, err)

	entry, err := h.queueRepo.GetByAppointmentID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusSkipped, entry.Status)
}
