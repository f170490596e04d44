package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	apperrors "github.com/adaptix-edu/exam-service/internal/errors"
	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/adaptix-edu/exam-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

// ExportService produces downloadable artifacts for teachers: per-exam
// result sheets and item bank dumps. Results include only completed and
// finalized submissions; in-progress attempts are skipped.
type ExportService interface {
	ExportResultsToExcel(ctx context.Context, examID uint, userID string) ([]byte, error)
	ExportResultsToCSV(ctx context.Context, examID uint, userID string) ([]byte, error)
	ImportItemsFromCSV(ctx context.Context, examID uint, userID string, reader io.Reader) (*ItemImportResult, error)
}

type ItemImportResult struct {
	TotalRows    int                `json:"total_rows"`
	SuccessCount int                `json:"success_count"`
	ErrorCount   int                `json:"error_count"`
	Errors       []ItemImportError  `json:"errors,omitempty"`
	Items        []*models.Item     `json:"items,omitempty"`
}

type ItemImportError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

type exportService struct {
	repo        repositories.TransactionRepository
	examService ExamService
	logger      *slog.Logger
}

func NewExportService(repo repositories.TransactionRepository, examService ExamService, logger *slog.Logger) ExportService {
	return &exportService{
		repo:        repo,
		examService: examService,
		logger:      logger,
	}
}

var resultHeaders = []string{
	"Student ID", "Status", "End Reason", "Started At", "Completed At",
	"Total Score", "Percentage", "Result", "Infractions", "Finalized",
}

func (s *exportService) ExportResultsToExcel(ctx context.Context, examID uint, userID string) ([]byte, error) {
	rows, err := s.collectResults(ctx, examID, userID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheetName := "Results"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for i, header := range resultHeaders {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, row := range rows {
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Results exported", "exam_id", examID, "format", "xlsx", "rows", len(rows))
	return buf.Bytes(), nil
}

func (s *exportService) ExportResultsToCSV(ctx context.Context, examID uint, userID string) ([]byte, error) {
	rows, err := s.collectResults(ctx, examID, userID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(resultHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, value := range row {
			record[i] = fmt.Sprintf("%v", value)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	s.logger.Info("Results exported", "exam_id", examID, "format", "csv", "rows", len(rows))
	return buf.Bytes(), nil
}

// collectResults loads the exam, checks ownership and flattens its
// completed submissions into export rows.
func (s *exportService) collectResults(ctx context.Context, examID uint, userID string) ([][]interface{}, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewPermissionError(userID, examID, "exam", "export_results", "user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != models.RoleAdmin && exam.CreatedBy != userID {
		return nil, NewPermissionError(userID, examID, "exam", "export_results", "not the exam owner")
	}

	submissions, _, err := s.repo.Submission().GetByExam(ctx, examID, repositories.SubmissionFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to get submissions: %w", err)
	}

	rows := make([][]interface{}, 0, len(submissions))
	for _, sub := range submissions {
		if sub.Status == models.SubmissionInProgress {
			continue
		}

		percentage := 0.0
		if exam.TotalPoints > 0 {
			percentage = sub.TotalScore / float64(exam.TotalPoints) * 100
		}
		result := "Fail"
		if exam.TotalPoints > 0 && sub.TotalScore/float64(exam.TotalPoints) >= exam.PassingRatio {
			result = "Pass"
		}

		row := []interface{}{
			sub.StudentID,
			string(sub.Status),
			endReasonLabel(sub.EndReason),
			sub.StartedAt.Format("2006-01-02 15:04:05"),
		}
		if sub.CompletedAt != nil {
			row = append(row, sub.CompletedAt.Format("2006-01-02 15:04:05"))
		} else {
			row = append(row, "")
		}
		row = append(row,
			sub.TotalScore,
			fmt.Sprintf("%.1f%%", percentage),
			result,
			sub.InfractionCount,
			sub.IsFinalized,
		)
		rows = append(rows, row)
	}
	return rows, nil
}

func endReasonLabel(reason *string) string {
	if reason == nil {
		return ""
	}
	return *reason
}

// ===== ITEM BANK IMPORT =====

func (s *exportService) ImportItemsFromCSV(ctx context.Context, examID uint, userID string, reader io.Reader) (*ItemImportResult, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, apperrors.ValidationErrors{
			*apperrors.NewValidationError("file", "CSV must have a header row and at least one data row", nil),
		}
	}

	headerMap := make(map[string]int)
	for i, header := range records[0] {
		headerMap[strings.ToLower(strings.TrimSpace(header))] = i
	}
	for _, col := range []string{"kind", "question_text"} {
		if _, ok := headerMap[col]; !ok {
			return nil, apperrors.ValidationErrors{
				*apperrors.NewValidationError("headers", fmt.Sprintf("missing required column: %s", col), nil),
			}
		}
	}

	result := &ItemImportResult{TotalRows: len(records) - 1}
	var itemReqs []ItemRequest

	for rowIndex, record := range records[1:] {
		req, rowErrs := s.parseItemRow(record, headerMap, rowIndex+2)
		if len(rowErrs) > 0 {
			result.Errors = append(result.Errors, rowErrs...)
			result.ErrorCount++
			continue
		}
		itemReqs = append(itemReqs, *req)
		result.SuccessCount++
	}

	if len(itemReqs) > 0 {
		items, err := s.examService.AddItems(ctx, examID, userID, &AddItemsRequest{Items: itemReqs})
		if err != nil {
			return nil, err
		}
		result.Items = items
	}

	s.logger.Info("Item import completed",
		"exam_id", examID,
		"total_rows", result.TotalRows,
		"success_count", result.SuccessCount,
		"error_count", result.ErrorCount)
	return result, nil
}

func (s *exportService) parseItemRow(record []string, headerMap map[string]int, rowNum int) (*ItemRequest, []ItemImportError) {
	var errs []ItemImportError

	getColumn := func(name string) string {
		if index, ok := headerMap[name]; ok && index < len(record) {
			return strings.TrimSpace(record[index])
		}
		return ""
	}

	kind := models.ItemKind(strings.ToLower(getColumn("kind")))
	if kind != models.ItemMultipleChoice && kind != models.ItemFreeText {
		errs = append(errs, ItemImportError{Row: rowNum, Column: "kind", Message: "must be multiple_choice or free_text"})
		return nil, errs
	}

	text := getColumn("question_text")
	if text == "" {
		errs = append(errs, ItemImportError{Row: rowNum, Column: "question_text", Message: "required field"})
		return nil, errs
	}

	points := 1
	if raw := getColumn("points"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil && p > 0 {
			points = p
		}
	}

	difficulty := 0.5
	if raw := getColumn("difficulty"); raw != "" {
		if d, err := strconv.ParseFloat(raw, 64); err == nil && d >= 0 && d <= 1 {
			difficulty = d
		}
	}

	req := &ItemRequest{
		QuestionText: text,
		Kind:         kind,
		Difficulty:   difficulty,
		Points:       points,
	}

	switch kind {
	case models.ItemMultipleChoice:
		var options []models.ChoiceOption
		for _, col := range []string{"option_a", "option_b", "option_c", "option_d"} {
			if text := getColumn(col); text != "" {
				key := strings.ToUpper(strings.TrimPrefix(col, "option_"))
				options = append(options, models.ChoiceOption{Key: key, Text: text})
			}
		}
		if len(options) < 2 {
			errs = append(errs, ItemImportError{Row: rowNum, Column: "options", Message: "must have at least 2 options"})
			return nil, errs
		}
		correct := strings.ToUpper(getColumn("correct_choice"))
		if correct == "" {
			errs = append(errs, ItemImportError{Row: rowNum, Column: "correct_choice", Message: "required for multiple_choice"})
			return nil, errs
		}
		req.Options = options
		req.CorrectChoice = &correct

	case models.ItemFreeText:
		reference := getColumn("reference_answer")
		if reference == "" {
			errs = append(errs, ItemImportError{Row: rowNum, Column: "reference_answer", Message: "required for free_text"})
			return nil, errs
		}
		req.ReferenceAnswer = &reference
	}

	return req, nil
}
