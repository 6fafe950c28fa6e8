package question

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var excelHeaders = []string{
	"topic", "subtopic", "question",
	"option_a", "option_b", "option_c", "option_d",
	"correct_answer", "difficulty", "explanation", "tags", "pyq_year",
}

// ExportExcel writes the whole question bank as an xlsx workbook.
func (s *Service) ExportExcel(ctx context.Context, f Filter) ([]byte, error) {
	items, err := s.Find(ctx, f)
	if err != nil {
		return nil, err
	}

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	for i, h := range excelHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = wb.SetCellValue(sheet, cell, h)
	}
	for i, q := range items {
		row := i + 2
		pyqYear := ""
		if q.PYQYear != nil {
			pyqYear = strconv.Itoa(*q.PYQYear)
		}
		values := []any{
			q.Topic,
			q.Subtopic,
			q.Text,
			q.Options[0],
			q.Options[1],
			q.Options[2],
			q.Options[3],
			q.CorrectAnswer,
			q.Difficulty,
			q.Explanation,
			strings.Join(q.Tags, ", "),
			pyqYear,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = wb.SetCellValue(sheet, cell, v)
		}
	}
	_ = wb.SetColWidth(sheet, "A", "L", 24)

	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportExcel reads an xlsx workbook in the export layout and inserts each row
// independently, reporting per-row failures.
func (s *Service) ImportExcel(ctx context.Context, r io.Reader) (*ImportReport, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = wb.Close() }()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel sheet is empty")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("no data rows found")
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	required := []string{"topic", "subtopic", "question", "option_a", "option_b", "option_c", "option_d", "correct_answer", "difficulty"}
	for _, col := range required {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]
		report.TotalRows++

		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		correct, err := parseCorrectAnswer(get("correct_answer"))
		if err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: rowNo, Error: err.Error()})
			continue
		}

		in := Input{
			Topic:         get("topic"),
			Subtopic:      get("subtopic"),
			Text:          get("question"),
			Options:       []string{get("option_a"), get("option_b"), get("option_c"), get("option_d")},
			CorrectAnswer: correct,
			Difficulty:    get("difficulty"),
			Explanation:   get("explanation"),
			Tags:          splitTags(get("tags")),
		}
		if raw := get("pyq_year"); raw != "" {
			year, err := strconv.Atoi(raw)
			if err != nil {
				report.FailedRows++
				report.Errors = append(report.Errors, ImportRowError{Row: rowNo, Error: "pyq_year must be a number"})
				continue
			}
			in.PYQYear = &year
		}

		if _, err := s.Create(ctx, in); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: rowNo, Error: err.Error()})
			continue
		}
		report.SuccessRows++
	}

	return report, nil
}

// parseCorrectAnswer accepts a 0-3 index or an A-D letter.
func parseCorrectAnswer(v string) (int, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	switch v {
	case "a":
		return 0, nil
	case "b":
		return 1, nil
	case "c":
		return 2, nil
	case "d":
		return 3, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 3 {
		return 0, errors.New("correct_answer must be 0-3 or A-D")
	}
	return n, nil
}

func splitTags(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	return normalizeStrings(parts)
}
