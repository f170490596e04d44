package handlers

import (
	"net/http"

	"github.com/adaptix-edu/exam-service/internal/services"
	"github.com/adaptix-edu/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	examHandler      *ExamHandler
	sessionHandler   *SessionHandler
	reviewHandler    *ReviewHandler
	analyticsHandler *AnalyticsHandler
}

func NewHandlerManager(
	examService services.ExamService,
	sessionService services.SessionService,
	reviewService services.ReviewService,
	exportService services.ExportService,
	analyticsService services.AnalyticsService,
	validator *utils.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		examHandler:      NewExamHandler(examService, exportService, validator, logger),
		sessionHandler:   NewSessionHandler(sessionService, validator, logger),
		reviewHandler:    NewReviewHandler(reviewService, validator, logger),
		analyticsHandler: NewAnalyticsHandler(analyticsService, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "exam-service",
		})
	})

	v1 := router.Group("/api/v1")
	v1.Use(IdentityMiddleware())
	{
		exams := v1.Group("/exams")
		{
			exams.POST("", hm.examHandler.CreateExam)
			exams.GET("", hm.examHandler.ListExams)
			exams.GET("/:id", hm.examHandler.GetExam)
			exams.GET("/:id/items", hm.examHandler.GetExamWithItems)
			exams.PUT("/:id", hm.examHandler.UpdateExam)
			exams.DELETE("/:id", hm.examHandler.DeleteExam)
			exams.POST("/:id/activate", hm.examHandler.ActivateExam)
			exams.POST("/:id/archive", hm.examHandler.ArchiveExam)

			// Item bank
			exams.POST("/:id/items", hm.examHandler.AddItems)
			exams.DELETE("/:id/items/:item_id", hm.examHandler.DeleteItem)
			exams.POST("/:id/items/import", hm.examHandler.ImportItems)

			// Results
			exams.GET("/:id/results/export", hm.examHandler.ExportResults)
		}

		sessions := v1.Group("/sessions")
		{
			sessions.POST("/start", hm.sessionHandler.StartSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.POST("/:id/answers", hm.sessionHandler.SubmitAnswer)
			sessions.POST("/:id/finish", hm.sessionHandler.FinishSession)
			sessions.POST("/:id/timeout", hm.sessionHandler.HandleTimeout)
			sessions.POST("/:id/infractions", hm.sessionHandler.RecordInfraction)
		}

		reviews := v1.Group("/reviews")
		{
			reviews.GET("/:id", hm.reviewHandler.GetSubmission)
			reviews.POST("/:id", hm.reviewHandler.ApplyReview)
			reviews.GET("/:id/audit", hm.reviewHandler.GetAuditTrail)
		}

		analytics := v1.Group("/analytics")
		{
			analytics.GET("/students/:student_id", hm.analyticsHandler.GetStudentPerformance)
			analytics.GET("/exams/:id", hm.analyticsHandler.GetExamStatistics)
		}
	}
}
