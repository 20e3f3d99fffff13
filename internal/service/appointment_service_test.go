package service

import (
	"context"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAppointment_ConflictScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.book(t, 10, 0, 10, 30)
	assert.Equal(t, appointment.StatusBooked, first.Status)
	assert.Regexp(t, `^ASH-[0-9A-F]{8}$`, first.CheckInCode)

	_, err := h.tryBook(10, 15, 10, 45)
	var conflict *appointment.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, first.ID, conflict.Conflicts[0].ID)
	assert.ErrorIs(t, err, appointment.ErrSlotUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.BookingConflictsTotal))

	page, err := h.appointments.ListAppointments(ctx, &appointment.ListAppointmentsQuery{}, h.staffCaller)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalCount, "a rejected booking writes nothing")

	slots, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), 30)
	require.NoError(t, err)
	byStart := map[string]bool{}
	for _, s := range slots {
		byStart[s.StartTime.In(h.loc).Format("15:04")] = s.IsAvailable
	}
	assert.True(t, byStart["09:30"])
	assert.False(t, byStart["10:00"])
	assert.True(t, byStart["10:30"])
}

func TestCreateAppointment_BackToBack(t *testing.T) {
	h := newHarness(t)

	h.book(t, 10, 0, 10, 30)
	h.book(t, 10, 30, 11, 0)
	h.book(t, 9, 30, 10, 0)
}

func TestCreateAppointment_NoOverlapsAfterManyBookings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	requests := [][4]int{
		{9, 0, 10, 0}, {9, 30, 10, 30}, {10, 0, 11, 15}, {11, 0, 11, 30},
		{11, 15, 12, 0}, {13, 0, 14, 0}, {13, 45, 14, 15}, {14, 0, 14, 30},
		{9, 0, 17, 0}, {16, 0, 18, 0}, {17, 30, 18, 0},
	}
	for _, r := range requests {
		_, _ = h.tryBook(r[0], r[1], r[2], r[3])
	}

	dayStart, dayEnd := appointment.DayBounds(h.day(), h.loc)
	booked, err := h.appointmentRepo.FindForPractitionerDay(ctx, h.guruji.ID, dayStart, dayEnd)
	require.NoError(t, err)
	require.NotEmpty(t, booked)

	for i := range booked {
		for j := i + 1; j < len(booked); j++ {
			assert.False(t,
				appointment.Overlaps(booked[i].StartTime, booked[i].EndTime, booked[j].StartTime, booked[j].EndTime),
				"%s overlaps %s", booked[i].ID, booked[j].ID)
		}
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gurujiID := h.guruji.ID
	coordinator := h.addUser(t, domain.RoleCoordinator, "desk@ashram.org")

	cases := []struct {
		name   string
		mutate func(cmd *appointment.CreateAppointmentCommand)
		caller Caller
		want   error
	}{
		{
			name:   "end before start",
			mutate: func(cmd *appointment.CreateAppointmentCommand) { cmd.EndTime = h.at(9, 0) },
			want:   appointment.ErrInvalidInterval,
		},
		{
			name:   "zero length",
			mutate: func(cmd *appointment.CreateAppointmentCommand) { cmd.EndTime = cmd.StartTime },
			want:   appointment.ErrInvalidInterval,
		},
		{
			name:   "crosses midnight",
			mutate: func(cmd *appointment.CreateAppointmentCommand) { cmd.EndTime = h.at(24, 30) },
			want:   appointment.ErrOutsideCalendarDay,
		},
		{
			name: "in the past",
			mutate: func(cmd *appointment.CreateAppointmentCommand) {
				cmd.Date = h.now
				cmd.StartTime = h.now.Add(-time.Hour)
				cmd.EndTime = h.now.Add(-30 * time.Minute)
			},
			want: appointment.ErrScheduledInPast,
		},
		{
			name:   "unknown priority",
			mutate: func(cmd *appointment.CreateAppointmentCommand) { cmd.Priority = "SOMEDAY" },
			want:   appointment.ErrInvalidPriority,
		},
		{
			name:   "unknown practitioner",
			mutate: func(cmd *appointment.CreateAppointmentCommand) { id := uuid.New(); cmd.GurujiID = &id },
			want:   appointment.ErrPractitionerNotFound,
		},
		{
			name:   "practitioner without guruji role",
			mutate: func(cmd *appointment.CreateAppointmentCommand) { cmd.GurujiID = &coordinator.ID },
			want:   appointment.ErrPractitionerNotFound,
		},
		{
			name:   "user booking for someone else",
			mutate: func(cmd *appointment.CreateAppointmentCommand) { cmd.UserID = uuid.New() },
			caller: h.seekerCaller,
			want:   ErrForbidden,
		},
		{
			name:   "guruji cannot book",
			mutate: func(cmd *appointment.CreateAppointmentCommand) {},
			caller: h.gurujiCaller,
			want:   ErrForbidden,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &appointment.CreateAppointmentCommand{
				UserID:    h.seeker.ID,
				GurujiID:  &gurujiID,
				Date:      h.day(),
				StartTime: h.at(10, 0),
				EndTime:   h.at(10, 30),
			}
			tc.mutate(cmd)
			caller := tc.caller
			if caller.Role == "" {
				caller = h.staffCaller
			}

			_, err := h.appointments.CreateAppointment(ctx, cmd, caller)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateAppointment_UserBooksForSelf(t *testing.T) {
	h := newHarness(t)
	gurujiID := h.guruji.ID

	a, err := h.appointments.CreateAppointment(context.Background(), &appointment.CreateAppointmentCommand{
		GurujiID:  &gurujiID,
		Date:      h.day(),
		StartTime: h.at(11, 0),
		EndTime:   h.at(11, 30),
	}, h.seekerCaller)
	require.NoError(t, err)
	assert.Equal(t, h.seeker.ID, a.UserID)
	assert.Equal(t, h.seeker.ID, a.CreatedBy)
	assert.Equal(t, appointment.PriorityNormal, a.Priority)
	assert.True(t, a.Date.Equal(time.Date(2030, 3, 14, 0, 0, 0, 0, time.UTC)))
}

func TestCreateAppointment_WithoutPractitioner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.appointments.CreateAppointment(ctx, &appointment.CreateAppointmentCommand{
			UserID:    h.seeker.ID,
			Date:      h.day(),
			StartTime: h.at(10, 0),
			EndTime:   h.at(10, 30),
		}, h.staffCaller)
		require.NoError(t, err, "unassigned requests do not block each other")
	}
}

func TestUpdateStatus_CheckInStampsAndCancelKeeps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.book(t, 10, 0, 10, 30)
	assert.Nil(t, a.CheckedInAt)

	checkedIn, err := h.appointments.CheckIn(ctx, " "+a.CheckInCode+" ", h.staffCaller)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCheckedIn, checkedIn.Status)
	require.NotNil(t, checkedIn.CheckedInAt)
	assert.True(t, checkedIn.CheckedInAt.Equal(h.now))

	h.now = h.now.Add(5 * time.Minute)
	cancelled, err := h.appointments.CancelAppointment(ctx, a.ID, "  feeling unwell ", h.seekerCaller)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)
	assert.Equal(t, "feeling unwell", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CheckedInAt, "cancel keeps the check-in timestamp")
	require.NotNil(t, cancelled.CancelledAt)

	stored, err := h.appointments.GetAppointment(ctx, a.ID, h.staffCaller)
	require.NoError(t, err)
	require.NotNil(t, stored.CheckedInAt)
	assert.True(t, stored.CheckedInAt.Equal(h.now.Add(-5*time.Minute)))
	assert.Equal(t, appointment.StatusCancelled, stored.Status)
}

func TestUpdateStatus_EnforcesTransitionTable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.book(t, 10, 0, 10, 30)

	_, err := h.appointments.UpdateStatus(ctx, a.ID, appointment.StatusCompleted, h.staffCaller)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

	_, err = h.appointments.UpdateStatus(ctx, a.ID, "LATE", h.staffCaller)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatus)

	_, err = h.appointments.UpdateStatus(ctx, a.ID, appointment.StatusConfirmed, h.seekerCaller)
	assert.ErrorIs(t, err, ErrForbidden, "users cannot drive the desk workflow")

	for _, next := range []appointment.Status{appointment.StatusConfirmed, appointment.StatusCheckedIn, appointment.StatusInProgress} {
		_, err = h.appointments.UpdateStatus(ctx, a.ID, next, h.gurujiCaller)
		require.NoError(t, err, next)
	}
	done, err := h.appointments.CompleteAppointment(ctx, a.ID, h.gurujiCaller)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)

	_, err = h.appointments.CancelAppointment(ctx, a.ID, "", h.staffCaller)
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition, "completed is terminal")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AppointmentsTotal.WithLabelValues("COMPLETED")))
}

func TestCancelAppointment_FreesTheSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.book(t, 10, 0, 10, 30)
	_, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), 30)
	require.NoError(t, err)

	_, err = h.appointments.UpdateStatus(ctx, a.ID, appointment.StatusCancelled, h.staffCaller)
	require.NoError(t, err)

	slots, err := h.availability.GetAvailableSlots(ctx, h.guruji.ID, h.day(), 30)
	require.NoError(t, err)
	for _, s := range slots {
		assert.True(t, s.IsAvailable, s.StartTime)
	}
	h.book(t, 10, 0, 10, 30)
}

func TestReschedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.book(t, 10, 0, 11, 0)
	h.book(t, 12, 0, 12, 30)

	moved, err := h.appointments.Reschedule(ctx, a.ID, &appointment.RescheduleCommand{
		Date: h.day(), StartTime: h.at(10, 30), EndTime: h.at(11, 30),
	}, h.seekerCaller)
	require.NoError(t, err, "overlapping its own old interval is fine")
	assert.True(t, moved.StartTime.Equal(h.at(10, 30)))

	_, err = h.appointments.Reschedule(ctx, a.ID, &appointment.RescheduleCommand{
		Date: h.day(), StartTime: h.at(11, 45), EndTime: h.at(12, 15),
	}, h.seekerCaller)
	assert.ErrorIs(t, err, appointment.ErrSlotUnavailable)

	other := h.addUser(t, domain.RoleGuruji, "other@ashram.org")
	moved, err = h.appointments.Reschedule(ctx, a.ID, &appointment.RescheduleCommand{
		GurujiID: &other.ID, Date: h.day(), StartTime: h.at(12, 0), EndTime: h.at(12, 30),
	}, h.staffCaller)
	require.NoError(t, err)
	assert.True(t, moved.HasPractitioner(other.ID))

	_, err = h.appointments.UpdateStatus(ctx, a.ID, appointment.StatusCheckedIn, h.staffCaller)
	require.NoError(t, err)
	_, err = h.appointments.Reschedule(ctx, a.ID, &appointment.RescheduleCommand{
		Date: h.day(), StartTime: h.at(15, 0), EndTime: h.at(15, 30),
	}, h.staffCaller)
	assert.ErrorIs(t, err, appointment.ErrNotReschedulable)
}

func TestReschedule_CancelledMeanwhileStaysCancelled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.book(t, 10, 0, 10, 30)
	h.appointments.repo = &interleavingRepo{
		Repository: h.appointmentRepo,
		afterGet: func() {
			_, err := h.appointments.CancelAppointment(ctx, a.ID, "travel", h.staffCaller)
			require.NoError(t, err)
		},
	}

	_, err := h.appointments.Reschedule(ctx, a.ID, &appointment.RescheduleCommand{
		Date: h.day(), StartTime: h.at(11, 0), EndTime: h.at(11, 30),
	}, h.staffCaller)
	require.ErrorIs(t, err, appointment.ErrNotReschedulable)

	stored, err := h.appointmentRepo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, stored.Status)
	assert.NotNil(t, stored.CancelledAt)
	assert.Equal(t, "travel", stored.CancellationReason)
	assert.True(t, stored.StartTime.Equal(h.at(10, 0)))
}

func TestUpdateStatus_ConcurrentChangeIsNotOverwritten(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.book(t, 10, 0, 10, 30)
	h.appointments.repo = &interleavingRepo{
		Repository: h.appointmentRepo,
		afterGet: func() {
			_, err := h.appointments.CancelAppointment(ctx, a.ID, "", h.staffCaller)
			require.NoError(t, err)
		},
	}

	_, err := h.appointments.UpdateStatus(ctx, a.ID, appointment.StatusCheckedIn, h.staffCaller)
	require.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

	stored, err := h.appointmentRepo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, stored.Status)
	assert.Nil(t, stored.CheckedInAt)
	assert.Zero(t, testutil.ToFloat64(h.metrics.AppointmentsTotal.WithLabelValues(string(appointment.StatusCheckedIn))))
}

func TestAccessRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.book(t, 10, 0, 10, 30)

	stranger := Caller{ID: uuid.New(), Role: domain.RoleUser}
	otherGuruji := Caller{ID: uuid.New(), Role: domain.RoleGuruji}

	_, err := h.appointments.GetAppointment(ctx, a.ID, stranger)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.appointments.GetAppointment(ctx, a.ID, otherGuruji)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.appointments.CancelAppointment(ctx, a.ID, "", stranger)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.appointments.GetAppointment(ctx, a.ID, h.gurujiCaller)
	assert.NoError(t, err)
	_, err = h.appointments.GetByCheckInCode(ctx, a.CheckInCode, h.seekerCaller)
	assert.NoError(t, err)

	page, err := h.appointments.ListAppointments(ctx, &appointment.ListAppointmentsQuery{}, stranger)
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount)

	page, err = h.appointments.ListAppointments(ctx, &appointment.ListAppointmentsQuery{PageSize: 1000}, h.seekerCaller)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalCount)
	assert.Equal(t, 20, page.PageSize)

	_, err = h.appointments.GetAppointment(ctx, uuid.New(), h.staffCaller)
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}
