// Package export renders migration session reports as spreadsheet workbooks
// for operators reviewing a run.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/repository"
)

const (
	summarySheet = "Summary"
	errorSheet   = "Errors"
)

// Service builds project reports from the session store.
type Service struct {
	projects repository.ProjectRepository
	sessions repository.SessionRepository
	now      func() time.Time
}

// NewService creates a report service.
func NewService(projects repository.ProjectRepository, sessions repository.SessionRepository) *Service {
	return &Service{
		projects: projects,
		sessions: sessions,
		now:      time.Now,
	}
}

// WriteProjectReport renders one workbook for the project: a summary sheet
// with one row per session and an error sheet with the combined error logs.
func (s *Service) WriteProjectReport(ctx context.Context, projectID uuid.UUID, w io.Writer) error {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	sessions, err := s.sessions.ListByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), summarySheet)
	writeRow(f, summarySheet, 1, []any{
		"Object Type", "Status", "Total", "Processed", "Successful", "Failed",
		"Progress", "Started At", "Completed At",
	})
	for i, session := range sessions {
		writeRow(f, summarySheet, i+2, []any{
			session.ObjectType,
			string(session.Status),
			session.TotalRecords,
			session.ProcessedRecords,
			session.SuccessfulRecords,
			session.FailedRecords,
			fmt.Sprintf("%.1f%%", session.Progress()*100),
			formatTime(session.StartedAt),
			formatTime(session.CompletedAt),
		})
	}

	if _, err := f.NewSheet(errorSheet); err != nil {
		return fmt.Errorf("create error sheet: %w", err)
	}
	writeRow(f, errorSheet, 1, []any{"Object Type", "Timestamp", "Record", "Message", "Details"})
	row := 2
	for _, session := range sessions {
		full, err := s.sessions.GetByID(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("load session %s: %w", session.ID, err)
		}
		for _, entry := range full.Errors {
			writeRow(f, errorSheet, row, []any{
				session.ObjectType,
				entry.Timestamp.Format(time.RFC3339),
				entry.RecordID,
				entry.Message,
				entry.Details,
			})
			row++
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write report for project %s: %w", project.ID, err)
	}
	return nil
}

// ReportFileName is the suggested download name for a project report.
func (s *Service) ReportFileName(project domain.MigrationProject) string {
	return fmt.Sprintf("migration-%s-%s.xlsx", project.Name, s.now().Format("20060102-150405"))
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			continue
		}
		_ = f.SetCellValue(sheet, cell, value)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
