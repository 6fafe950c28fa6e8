package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

var historyHeaders = []string{
	"test_id", "submitted_at", "total_questions", "correct", "incorrect",
	"unanswered", "score", "percentage", "time_taken_seconds",
}

// ExportHistoryExcel writes a user's test history as an xlsx workbook.
func (s *Service) ExportHistoryExcel(ctx context.Context, userID string) ([]byte, error) {
	items, _, err := s.History(ctx, userID, 100, 0)
	if err != nil {
		return nil, err
	}

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	for i, h := range historyHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = wb.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		row := i + 2
		values := []any{
			it.ID,
			time.Unix(it.SubmittedAt, 0).UTC().Format(time.RFC3339),
			it.TotalQuestions,
			it.CorrectAnswers,
			it.IncorrectAnswers,
			it.UnansweredQuestions,
			it.Score,
			it.Percentage,
			it.TimeTaken,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = wb.SetCellValue(sheet, cell, v)
		}
	}
	_ = wb.SetColWidth(sheet, "A", "I", 22)

	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
