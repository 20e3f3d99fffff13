package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dmehra2102/prod-golang-projects/ashram/internal/domain/appointment"
	"github.com/xuri/excelize/v2"
)

const (
	AppointmentsSheet = "Appointments"
	SummarySheet      = "Summary"
	ContentType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var appointmentColumns = []string{
	"ID", "Date", "Start", "End", "Status", "Priority", "Guruji ID", "User ID",
	"Check-in Code", "Checked In At", "Completed At", "Cancellation Reason",
}

// WriteAppointments renders appointments, one row each, plus a per-status
// summary sheet. Times are shown in loc.
func WriteAppointments(w io.Writer, appointments []*appointment.Appointment, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", AppointmentsSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if err := writeRow(f, AppointmentsSheet, 1, toRow(appointmentColumns)); err != nil {
		return err
	}
	boldHeader(f, AppointmentsSheet, len(appointmentColumns))

	counts := make(map[appointment.Status]int, len(appointment.AllStatuses))
	for i, a := range appointments {
		counts[a.Status]++
		if err := writeRow(f, AppointmentsSheet, i+2, appointmentRow(a, loc)); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}
	if err := writeRow(f, SummarySheet, 1, []any{"Status", "Count"}); err != nil {
		return err
	}
	boldHeader(f, SummarySheet, 2)
	for i, status := range appointment.AllStatuses {
		if err := writeRow(f, SummarySheet, i+2, []any{string(status), counts[status]}); err != nil {
			return err
		}
	}
	if err := writeRow(f, SummarySheet, len(appointment.AllStatuses)+2, []any{"TOTAL", len(appointments)}); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func appointmentRow(a *appointment.Appointment, loc *time.Location) []any {
	guruji := ""
	if a.GurujiID != nil {
		guruji = a.GurujiID.String()
	}
	return []any{
		a.ID.String(),
		a.Date.Format("2006-01-02"),
		a.StartTime.In(loc).Format("15:04"),
		a.EndTime.In(loc).Format("15:04"),
		string(a.Status),
		string(a.Priority),
		guruji,
		a.UserID.String(),
		a.CheckInCode,
		formatOptional(a.CheckedInAt, loc),
		formatOptional(a.CompletedAt, loc),
		a.CancellationReason,
	}
}

func formatOptional(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

func toRow(values []string) []any {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, rowNum, err)
	}
	return nil
}

func boldHeader(f *excelize.File, sheet string, columns int) {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return
	}
	endCell, _ := excelize.CoordinatesToCellName(columns, 1)
	_ = f.SetCellStyle(sheet, "A1", endCell, style)
}
