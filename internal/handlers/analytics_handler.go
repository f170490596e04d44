package handlers

import (
	"net/http"

	"github.com/adaptix-edu/exam-service/internal/services"
	"github.com/adaptix-edu/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	BaseHandler
	analyticsService services.AnalyticsService
}

func NewAnalyticsHandler(
	analyticsService services.AnalyticsService,
	logger utils.Logger,
) *AnalyticsHandler {
	return &AnalyticsHandler{
		BaseHandler:      NewBaseHandler(logger),
		analyticsService: analyticsService,
	}
}

// GetStudentPerformance returns a student's result history and
// aggregate scores. Students can only read their own.
func (h *AnalyticsHandler) GetStudentPerformance(c *gin.Context) {
	studentID := c.Param("student_id")
	if studentID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid student ID",
		})
		return
	}

	performance, err := h.analyticsService.GetStudentPerformance(c.Request.Context(), studentID, currentUserID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, performance)
}

// GetExamStatistics returns aggregate attempt and score statistics
// for one exam.
func (h *AnalyticsHandler) GetExamStatistics(c *gin.Context) {
	examID := parseUintParam(c, "id")
	if examID == 0 {
		return
	}

	stats, err := h.analyticsService.GetExamStatistics(c.Request.Context(), examID, currentUserID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
