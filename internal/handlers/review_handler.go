package handlers

import (
	"net/http"

	"github.com/adaptix-edu/exam-service/internal/services"
	"github.com/adaptix-edu/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type ReviewHandler struct {
	BaseHandler
	reviewService services.ReviewService
	validator     *utils.Validator
}

func NewReviewHandler(
	reviewService services.ReviewService,
	validator *utils.Validator,
	logger utils.Logger,
) *ReviewHandler {
	return &ReviewHandler{
		BaseHandler:   NewBaseHandler(logger),
		reviewService: reviewService,
		validator:     validator,
	}
}

// GetSubmission returns the full submission with answers for manual review.
func (h *ReviewHandler) GetSubmission(c *gin.Context) {
	submissionID := parseUintParam(c, "id")
	if submissionID == 0 {
		return
	}

	submission, err := h.reviewService.GetSubmissionForReview(c.Request.Context(), submissionID, currentUserID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// ApplyReview applies score overrides and optionally finalizes the
// submission. A finalized submission rejects any further review.
func (h *ReviewHandler) ApplyReview(c *gin.Context) {
	submissionID := parseUintParam(c, "id")
	if submissionID == 0 {
		return
	}

	var req services.ApplyReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Applying review",
		"submission_id", submissionID,
		"overrides", len(req.Overrides),
		"finalize", req.Finalize)

	result, err := h.reviewService.ApplyReview(c.Request.Context(), submissionID, currentUserID(c), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAuditTrail lists the review history of a submission.
func (h *ReviewHandler) GetAuditTrail(c *gin.Context) {
	submissionID := parseUintParam(c, "id")
	if submissionID == 0 {
		return
	}

	entries, err := h.reviewService.GetAuditTrail(c.Request.Context(), submissionID, currentUserID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}
