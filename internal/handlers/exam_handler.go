package handlers

import (
	"fmt"
	"net/http"

	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/adaptix-edu/exam-service/internal/repositories"
	"github.com/adaptix-edu/exam-service/internal/services"
	"github.com/adaptix-edu/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type ExamHandler struct {
	BaseHandler
	examService   services.ExamService
	exportService services.ExportService
	validator     *utils.Validator
}

func NewExamHandler(
	examService services.ExamService,
	exportService services.ExportService,
	validator *utils.Validator,
	logger utils.Logger,
) *ExamHandler {
	return &ExamHandler{
		BaseHandler:   NewBaseHandler(logger),
		examService:   examService,
		exportService: exportService,
		validator:     validator,
	}
}

func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req services.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating exam", "title", req.Title)

	exam, err := h.examService.CreateExam(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, exam)
}

func (h *ExamHandler) GetExam(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}

	exam, err := h.examService.GetExam(c.Request.Context(), examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

func (h *ExamHandler) GetExamWithItems(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}

	exam, err := h.examService.GetExamWithItems(c.Request.Context(), examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

func (h *ExamHandler) UpdateExam(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}

	var req services.UpdateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Updating exam", "exam_id", examID)

	exam, err := h.examService.UpdateExam(c.Request.Context(), examID, currentUserID(c), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

func (h *ExamHandler) DeleteExam(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}

	h.LogRequest(c, "Deleting exam", "exam_id", examID)

	if err := h.examService.DeleteExam(c.Request.Context(), examID, currentUserID(c)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Exam deleted"})
}

func (h *ExamHandler) ListExams(c *gin.Context) {
	filters := repositories.ExamFilters{
		Limit:     queryInt(c, "limit", 20),
		Offset:    queryInt(c, "offset", 0),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if status := c.Query("status"); status != "" {
		s := models.ExamStatus(status)
		filters.Status = &s
	}
	if creator := c.Query("created_by"); creator != "" {
		filters.CreatedBy = &creator
	}

	exams, total, err := h.examService.ListExams(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Data: exams, Total: total})
}

func (h *ExamHandler) ActivateExam(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}

	h.LogRequest(c, "Activating exam", "exam_id", examID)

	if err := h.examService.ActivateExam(c.Request.Context(), examID, currentUserID(c)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Exam activated"})
}

func (h *ExamHandler) ArchiveExam(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}

	h.LogRequest(c, "Archiving exam", "exam_id", examID)

	if err := h.examService.ArchiveExam(c.Request.Context(), examID, currentUserID(c)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Exam archived"})
}

// ===== ITEM BANK =====

func (h *ExamHandler) AddItems(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}

	var req services.AddItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Adding items", "exam_id", examID, "count", len(req.Items))

	items, err := h.examService.AddItems(c.Request.Context(), examID, currentUserID(c), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, items)
}

func (h *ExamHandler) DeleteItem(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}
	itemID := parseUintParam(c, "item_id")
	if itemID == 0 {
		return
	}

	h.LogRequest(c, "Deleting item", "exam_id", examID, "item_id", itemID)

	if err := h.examService.DeleteItem(c.Request.Context(), examID, itemID, currentUserID(c)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Item deleted"})
}

// ImportItems loads items into the bank from an uploaded CSV file.
func (h *ExamHandler) ImportItems(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Missing file upload",
			Details: err.Error(),
		})
		return
	}
	defer file.Close()

	h.LogRequest(c, "Importing items", "exam_id", examID, "filename", header.Filename)

	result, err := h.exportService.ImportItemsFromCSV(c.Request.Context(), examID, currentUserID(c), file)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ===== RESULT EXPORT =====

func (h *ExamHandler) ExportResults(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}

	format := c.DefaultQuery("format", "xlsx")
	h.LogRequest(c, "Exporting results", "exam_id", examID, "format", format)

	var (
		data        []byte
		contentType string
		filename    string
		err         error
	)
	switch format {
	case "xlsx":
		data, err = h.exportService.ExportResultsToExcel(c.Request.Context(), examID, currentUserID(c))
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = fmt.Sprintf("exam_%d_results.xlsx", examID)
	case "csv":
		data, err = h.exportService.ExportResultsToCSV(c.Request.Context(), examID, currentUserID(c))
		contentType = "text/csv"
		filename = fmt.Sprintf("exam_%d_results.csv", examID)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Unsupported export format",
			Details: format,
		})
		return
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
