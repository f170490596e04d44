package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/adaptix-edu/exam-service/internal/services"
	"github.com/adaptix-edu/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	validator      *utils.Validator
}

type StartSessionRequest struct {
	ExamID uint `json:"exam_id" validate:"required"`
}

// SubmitAnswerRequest carries the student's response for one item.
// ImageBase64 is used for photographed free-text answers; the service
// runs OCR over it before grading.
type SubmitAnswerRequest struct {
	ItemID      uint    `json:"item_id" validate:"required"`
	Text        *string `json:"text" validate:"omitempty,max=20000"`
	ImageBase64 *string `json:"image_base64"`
	Skip        bool    `json:"skip"`
}

func NewSessionHandler(
	sessionService services.SessionService,
	validator *utils.Validator,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		validator:      validator,
	}
}

// StartSession begins a new attempt and serves the first item.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Starting session", "exam_id", req.ExamID)

	result, err := h.sessionService.Start(c.Request.Context(), req.ExamID, currentUserID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// SubmitAnswer grades one answer and serves the next item.
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	submissionID := parseUintParam(c, "id")
	if submissionID == 0 {
		return
	}

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Submitting answer", "submission_id", submissionID, "item_id", req.ItemID, "skip", req.Skip)

	studentID := currentUserID(c)
	if req.Skip {
		result, err := h.sessionService.SkipAnswer(c.Request.Context(), submissionID, req.ItemID, studentID)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	payload := &services.AnswerPayload{Text: req.Text}
	if req.ImageBase64 != nil && *req.ImageBase64 != "" {
		image, err := base64.StdEncoding.DecodeString(*req.ImageBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid image encoding",
				Details: err.Error(),
			})
			return
		}
		payload.Image = image
	}

	result, err := h.sessionService.SubmitAnswer(c.Request.Context(), submissionID, req.ItemID, payload, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// FinishSession ends the attempt early at the student's request.
func (h *SessionHandler) FinishSession(c *gin.Context) {
	submissionID := parseUintParam(c, "id")
	if submissionID == 0 {
		return
	}

	h.LogRequest(c, "Finishing session", "submission_id", submissionID)

	result, err := h.sessionService.Finish(c.Request.Context(), submissionID, currentUserID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleTimeout closes an expired attempt. Invoked by the scheduler or
// by a client that notices its timer ran out; safe to call repeatedly.
func (h *SessionHandler) HandleTimeout(c *gin.Context) {
	submissionID := parseUintParam(c, "id")
	if submissionID == 0 {
		return
	}

	h.LogRequest(c, "Handling session timeout", "submission_id", submissionID)

	result, err := h.sessionService.Timeout(c.Request.Context(), submissionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RecordInfraction registers one proctoring violation.
func (h *SessionHandler) RecordInfraction(c *gin.Context) {
	submissionID := parseUintParam(c, "id")
	if submissionID == 0 {
		return
	}

	h.LogRequest(c, "Recording proctoring infraction", "submission_id", submissionID)

	result, err := h.sessionService.RecordInfraction(c.Request.Context(), submissionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSession returns the submission with its answers. Students can only
// see their own submissions.
func (h *SessionHandler) GetSession(c *gin.Context) {
	submissionID := parseUintParam(c, "id")
	if submissionID == 0 {
		return
	}

	submission, err := h.sessionService.GetByIDWithDetails(c.Request.Context(), submissionID, currentUserID(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}
