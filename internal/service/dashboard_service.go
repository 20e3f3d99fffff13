package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/queue"
	"github.com/google/uuid"
)

type DaySummary struct {
	Date     string                       `json:"date"`
	GurujiID *uuid.UUID                   `json:"guruji_id,omitempty"`
	Counts   map[appointment.Status]int64 `json:"counts"`
	Total    int64                        `json:"total"`
	Waiting  int64                        `json:"waiting"`
}

type DashboardService struct {
	appointments appointment.Repository
	queue        queue.Repository
	loc          *time.Location
}

func NewDashboardService(appointments appointment.Repository, q queue.Repository, loc *time.Location) *DashboardService {
	return &DashboardService{appointments: appointments, queue: q, loc: loc}
}

// Summary counts the day's appointments per status and the visitors still
// waiting. Gurujis always get their own day.
func (s *DashboardService) Summary(ctx context.Context, date time.Time, gurujiID *uuid.UUID, caller Caller) (*DaySummary, error) {
	switch caller.Role {
	case domain.RoleAdmin, domain.RoleCoordinator:
	case domain.RoleGuruji:
		gurujiID = &caller.ID
	default:
		return nil, ErrForbidden
	}

	dayStart, dayEnd := appointment.DayBounds(date, s.loc)
	rows, err := s.appointments.CountByStatus(ctx, dayStart, dayEnd, gurujiID)
	if err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}

	summary := &DaySummary{
		Date:     dayLabel(date),
		GurujiID: gurujiID,
		Counts:   make(map[appointment.Status]int64, len(appointment.AllStatuses)),
	}
	for _, status := range appointment.AllStatuses {
		summary.Counts[status] = 0
	}
	for _, row := range rows {
		summary.Counts[row.Status] = row.Count
		summary.Total += row.Count
	}

	summary.Waiting, err = s.queue.CountWaiting(ctx, date, gurujiID)
	if err != nil {
		return nil, fmt.Errorf("counting queue: %w", err)
	}
	return summary, nil
}
